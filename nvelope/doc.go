/*

Package nvelope is the response side of nhttp: it writes handler
results and handler errors.

Errors become RFC 9457 problem details.  NotFound, Forbidden,
BadRequest, and ReturnCode annotate an error with the HTTP status it
should produce; errors that implement Problem describe themselves.

DeferredWriter buffers a response so that it can be abandoned and
replaced with an error until the moment it is flushed.

CatchPanic, SetErrorOnPanic, and the Recover middleware turn panics
into errors.

BasicLogger is the small logging interface used throughout nhttp.
LoggerFromZap adapts a zap.Logger to it.

*/
package nvelope
