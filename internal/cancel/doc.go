// Package cancel
// Author: momentics <momentics@gmail.com>
//
// Resettable cancellation token shared between a component's control surface
// and every blocking call it performs. Unlike context.Context, a Token can be
// cleared again, and it exposes a pollable descriptor so that poll(2) based
// waits wake up as soon as the token is signalled.
package cancel
