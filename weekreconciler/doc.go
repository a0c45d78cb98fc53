/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

// Package weekreconciler keeps a pull request's warning comment in sync with
// its board metadata: the warning exists exactly when the Week field is
// unset.
//
// Reconciliation is read-decide-act: list the PR's comments, read the board
// fields, then create or delete the marker comment as needed. The existence
// check and the create are not atomic; two overlapping invocations can both
// pass the check and leave duplicate warnings. That race is accepted: webhook
// deliveries arrive one per change, manual checks are human-paced, and the
// next reconciliation self-corrects against GitHub as the source of truth.
package weekreconciler
