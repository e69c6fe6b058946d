/*
Package facade wraps an authentication client behind a small blocking API.

The client is built lazily by a Factory the first time any operation needs
it, and that one instance is shared by every caller for the life of the
Service.  A construction failure is kept and returned to every later caller;
it is never retried.

	svc, err := facade.New(opts, facade.StaticLocation("https://app.example.com"))
	if err != nil {
		return err
	}
	defer svc.Close()

	ok, err := svc.IsAuthenticated(ctx)

IsAuthenticated and Profile ask the client on every call.  Login and Logout
navigate the user agent (see authclient.Navigator) and don't report errors;
they are logged.  HandleRedirectCallback ignores paths that don't carry both a
"code=" and a "state=" parameter without touching the client.
*/
package facade
