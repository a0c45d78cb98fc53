/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

// Package board reads the study board's custom fields for pull requests via
// the GitHub GraphQL API.
//
// The board attaches two fields this service cares about: "Week", an
// iteration field naming the study cycle a PR belongs to, and "Status", a
// single-select field whose "Solving" value marks work in progress. A PR can
// in principle be attached to several project boards; the reader takes the
// first matching value in traversal order. That is documented behavior, not a
// conflict-resolution guarantee.
package board
