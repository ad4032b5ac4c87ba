/*
Package authsdk holds the wire types of the Marquee auth API and a small
client for it.

# Errors

Every error response has the shape

	{"error": "<code>", "error_description": "<text>"}

Handlers turn service errors into that shape with FromError, which looks for
an ErrorCode method anywhere in the wrapped chain:

	if err != nil {
		authsdk.FromError(err).WriteError(w)
		return
	}

rate_limited and locked_out responses also carry Retry-After in seconds.

# Client

	client := authsdk.NewSDKClient("https://requests.example.com")
	health, err := client.GetReadiness(ctx)

	s := client.Session(token)
	me, err := s.Me(ctx)

Errors returned by the client are *APIError values.
*/
package authsdk
