// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package logging

import (
	"net/url"
	"strings"
)

const redacted = "[REDACTED]"

// sensitiveKeys are field names whose values are never logged verbatim.
// Matching is case-insensitive on the key with '-' and '.' folded to '_'.
var sensitiveKeys = map[string]struct{}{
	"passcode":      {},
	"password":      {},
	"secret":        {},
	"token":         {},
	"access_token":  {},
	"api_key":       {},
	"apikey":        {},
	"x_api_key":     {},
	"authorization": {},
	"login":         {},
}

// RedactSecret shows at most the first four characters of a credential.
// Short values are fully masked.
//
//	RedactSecret("s3cr3t-passcode") // "s3cr...[REDACTED]"
func RedactSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return redacted
	}
	return s[:4] + "..." + redacted
}

// RedactValue masks value when key names a credential.
func RedactValue(key, value string) string {
	k := strings.NewReplacer("-", "_", ".", "_").Replace(strings.ToLower(key))
	if _, ok := sensitiveKeys[k]; ok {
		return RedactSecret(value)
	}
	return value
}

// RedactURL strips userinfo and masks credential-like query parameters.
// Unparseable input is fully masked.
//
//	RedactURL("wss://bob:pw@rt.example.com/ws?token=abc") // "wss://rt.example.com/ws?token=%5BREDACTED%5D"
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	u.User = nil
	if u.RawQuery != "" {
		q := u.Query()
		for key, vals := range q {
			for i, v := range vals {
				if masked := RedactValue(key, v); masked != v {
					vals[i] = redacted
				}
			}
			q[key] = vals
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
