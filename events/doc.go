/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

// Package events classifies inbound webhook deliveries and dispatches the
// matching reconciliation action.
//
// Each delivery runs through a chain of scope filters (organization,
// repository, event-specific action filters) and short-circuits to an
// "ignored" acknowledgment at the first failing filter. Payloads are decoded
// into concrete event-shape types at the boundary; missing fields surface as
// empty values checked explicitly, never as silent propagation.
package events
