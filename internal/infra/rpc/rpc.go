// Package rpc is the rate-limited client for the registrar's HTTP API.
//
// Every call goes through a single dispatcher goroutine that owns the request
// queue and the pacing state:
//
//	client := rpc.NewClient(rpc.Config{
//	    BaseURL:           "https://httpapi.com/api",
//	    AuthUserID:        "12345",
//	    APIKey:            key,
//	    RequestsPerSecond: 5,
//	})
//	defer client.Close()
//
//	resp, err := client.Get(ctx, "domains/available.json",
//	    rpc.Params{}.Add("domain-name", "example").Add("tlds", "com", "net"))
//
// Failures are returned as *Error with a Kind. RETRYABLE_ERROR and
// REQUEST_TIMEOUT are retried with exponential backoff before the caller sees
// them; everything else is returned on the first occurrence.
package rpc
