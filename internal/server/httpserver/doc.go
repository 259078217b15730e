// Package httpserver provides the HTTP/HTTPS server for authcore-server.
//
// Routes live in the handler subpackage. This package adds the listener
// and the middleware chain around them:
//
//   - Recover, RequestID, Metrics, Audit and CORS on every request
//   - LoginRateLimit on the login endpoints
//   - NetworkACL on the /admin endpoints
//
// Session entries are read and written through the cookiestore subpackage.
package httpserver
