// Package authd is a standalone OAuth 2.0 authorization server implementing
// the authorization code grant. It exposes the authorization, token, and
// userinfo endpoints over HTTP and delegates flow logic to the server
// subpackage.
//
// Basic usage:
//
//	store := memory.New()
//	handler, err := authd.New(authd.Config{
//		Issuer:     "https://auth.example.com",
//		SigningKey: key,
//	}, store, store, store, store)
//	if err != nil {
//		log.Fatal(err)
//	}
//	mux := http.NewServeMux()
//	handler.RegisterRoutes(mux)
//	http.ListenAndServe(":8080", mux)
package authd
