// Package connection talks to authcore-server on behalf of authcore-cli.
//
// HTTPClient sends JSON requests and unwraps the response envelope, turning
// error codes back into typed domain errors. RemoteAuthority implements
// service.TokenAuthority over the server's verify and refresh endpoints, so
// a local SessionManager can manage a session whose tokens the server signs.
package connection
