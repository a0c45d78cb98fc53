/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

// Package bulk drives administrative actions across the full set of open
// pull requests: week checks, approvals and merges.
//
// PRs are processed strictly sequentially. This keeps API rate-limit
// consumption bounded and result ordering deterministic; wall-clock latency
// grows with PR count, which is acceptable for a study repository. A failing
// PR never aborts the batch: its error lands in that PR's result entry and
// processing continues.
package bulk
