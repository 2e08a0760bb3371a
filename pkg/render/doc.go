/*
Package render formats generated definitions for display. A Renderer joins the
generated tokens with single spaces and executes a text/template against the
result, so the command line tool and the HTTP API can share one output format.

The template receives a Data value with the joined Text, the raw Tokens, the
batch Index and the Model name. Besides the text/template builtins, the
following functions are available: capitalize, upper, lower, join, truncate,
add, sub, inc, dec, mod, repeat and isSet.
*/
package render
