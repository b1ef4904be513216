// Package broadcast copies one message to every known group and/or user.
//
// An owner starts a dialog by replying to a message with /broadcast, then
// picks the audience and the pin preference. Sessions track that dialog;
// the Dispatcher performs the fan-out.
//
// Delivery is strictly sequential and at most once per recipient. A failed
// recipient is counted and reported, never retried, and never aborts the run.
package broadcast
