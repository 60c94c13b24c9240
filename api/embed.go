// Package api holds the OpenAPI documents served under /docs.
package api

import _ "embed"

//go:embed payments.yaml
var PaymentsSpec []byte

//go:embed notifications.yaml
var NotificationsSpec []byte
