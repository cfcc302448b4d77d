package main

import (
	"fmt"
	"io"
	"time"

	"github.com/bionicotaku/lingo-utils-jwtclaims"
	"github.com/bionicotaku/lingo-utils-jwtclaims/internal/json"
)

func printClaims(w io.Writer, title string, claims *jwtclaims.Claims) {
	r := claims.Registered
	fmt.Fprintf(w, "== %s ==\n", title)
	printString(w, "issuer", r.Issuer)
	printString(w, "subject", r.Subject)
	if r.Audience != nil {
		fmt.Fprintf(w, "%-13s: %v\n", "audience", r.Audience)
	}
	if t, ok := r.ExpiresAt(); ok {
		fmt.Fprintf(w, "%-13s: %s\n", "expires_at", t.Format(time.RFC3339))
	}
	if t, ok := r.NotBeforeTime(); ok {
		fmt.Fprintf(w, "%-13s: %s\n", "not_before", t.Format(time.RFC3339))
	}
	if t, ok := r.IssuedAtTime(); ok {
		fmt.Fprintf(w, "%-13s: %s\n", "issued_at", t.Format(time.RFC3339))
	}
	printString(w, "jwt_id", r.JSONWebTokenID)
	if names := claims.PrivateNames(); len(names) > 0 {
		fmt.Fprintln(w, "private_claims:")
		for _, name := range names {
			value, err := json.Marshal(claims.Private[name])
			if err != nil {
				value = []byte(fmt.Sprintf("%v", claims.Private[name]))
			}
			fmt.Fprintf(w, "  %s: %s\n", name, value)
		}
	}
}

func printString(w io.Writer, label string, v *string) {
	if v != nil {
		fmt.Fprintf(w, "%-13s: %s\n", label, *v)
	}
}

func printJSON(w io.Writer, claims *jwtclaims.Claims) error {
	data, err := jwtclaims.Encode(claims)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
