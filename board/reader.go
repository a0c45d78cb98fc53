/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/shurcooL/githubv4"
)

const (
	weekFieldName   = "Week"
	statusFieldName = "Status"
)

// ErrNotPullRequest is returned by ResolveItem when the referenced project
// item content is not a pull request.
var ErrNotPullRequest = errors.New("board: project item content is not a pull request")

// Fields is a fresh snapshot of the board fields for one PR. A nil pointer
// means the field is unset on every board the PR is attached to.
type Fields struct {
	Week   *string
	Status *string
}

// Reader queries board fields over GraphQL.
type Reader struct {
	gql *githubv4.Client
}

// NewReader returns a Reader backed by the given GraphQL client.
func NewReader(gql *githubv4.Client) *Reader {
	return &Reader{gql: gql}
}

type fieldValueNode struct {
	Iteration struct {
		Title string
		Field struct {
			Common struct {
				Name string
			} `graphql:"... on ProjectV2FieldCommon"`
		}
	} `graphql:"... on ProjectV2ItemFieldIterationValue"`
	SingleSelect struct {
		Name  string
		Field struct {
			Common struct {
				Name string
			} `graphql:"... on ProjectV2FieldCommon"`
		}
	} `graphql:"... on ProjectV2ItemFieldSingleSelectValue"`
}

// ProjectFields fetches the Week and Status values for a PR with a single
// query covering up to 10 board attachments of 20 field values each. Absence
// of a field yields a nil entry, not an error; errors are reserved for
// transport or decode failures.
func (r *Reader) ProjectFields(ctx context.Context, owner, repo string, number int) (Fields, error) {
	var q struct {
		Repository struct {
			PullRequest struct {
				ProjectItems struct {
					Nodes []struct {
						FieldValues struct {
							Nodes []fieldValueNode
						} `graphql:"fieldValues(first: 20)"`
					}
				} `graphql:"projectItems(first: 10)"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	variables := map[string]any{
		"owner":  githubv4.String(owner),
		"repo":   githubv4.String(repo),
		"number": githubv4.Int(number), //nolint:gosec // PR numbers fit in int32
	}
	if err := r.gql.Query(ctx, &q, variables); err != nil {
		return Fields{}, fmt.Errorf("querying project fields: %w", err)
	}

	var fields Fields
	for _, item := range q.Repository.PullRequest.ProjectItems.Nodes {
		for _, fv := range item.FieldValues.Nodes {
			// First match wins; see the package doc for the multi-board caveat.
			if fields.Week == nil && fv.Iteration.Title != "" && fv.Iteration.Field.Common.Name == weekFieldName {
				week := fv.Iteration.Title
				fields.Week = &week
			}
			if fields.Status == nil && fv.SingleSelect.Name != "" && fv.SingleSelect.Field.Common.Name == statusFieldName {
				status := fv.SingleSelect.Name
				fields.Status = &status
			}
		}
	}
	return fields, nil
}

// ResolveItem resolves a project item's content node ID to the concrete
// (owner, repo, number) triple of the pull request it wraps.
func (r *Reader) ResolveItem(ctx context.Context, contentNodeID string) (owner, repo string, number int, err error) {
	var q struct {
		Node struct {
			PullRequest struct {
				Number     int
				Repository struct {
					Name  string
					Owner struct {
						Login string
					}
				}
			} `graphql:"... on PullRequest"`
		} `graphql:"node(id: $id)"`
	}
	variables := map[string]any{
		"id": githubv4.ID(contentNodeID),
	}
	if err := r.gql.Query(ctx, &q, variables); err != nil {
		return "", "", 0, fmt.Errorf("resolving project item content: %w", err)
	}
	pr := q.Node.PullRequest
	if pr.Number == 0 {
		return "", "", 0, ErrNotPullRequest
	}
	return pr.Repository.Owner.Login, pr.Repository.Name, pr.Number, nil
}

// PullRequestNodeID looks up the GraphQL node ID of a pull request.
func (r *Reader) PullRequestNodeID(ctx context.Context, owner, repo string, number int) (string, error) {
	var q struct {
		Repository struct {
			PullRequest struct {
				ID string
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	variables := map[string]any{
		"owner":  githubv4.String(owner),
		"repo":   githubv4.String(repo),
		"number": githubv4.Int(number), //nolint:gosec // PR numbers fit in int32
	}
	if err := r.gql.Query(ctx, &q, variables); err != nil {
		return "", fmt.Errorf("looking up pull request node ID: %w", err)
	}
	return q.Repository.PullRequest.ID, nil
}

// EnableAutoMerge turns on auto-merge for a pull request so GitHub merges it
// once requirements are met, using the given merge method.
func (r *Reader) EnableAutoMerge(ctx context.Context, prNodeID string, method githubv4.PullRequestMergeMethod) error {
	var m struct {
		EnablePullRequestAutoMerge struct {
			PullRequest struct {
				Number int
			}
		} `graphql:"enablePullRequestAutoMerge(input: $input)"`
	}
	input := githubv4.EnablePullRequestAutoMergeInput{
		PullRequestID: githubv4.ID(prNodeID),
		MergeMethod:   &method,
	}
	if err := r.gql.Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("enabling auto-merge: %w", err)
	}
	return nil
}
