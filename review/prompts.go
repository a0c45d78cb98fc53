/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

package review

import "text/template"

// reviewPrompt is the single prompt sent per review request. The diff is
// truncated before binding; see maxDiffBytes.
var reviewPrompt = template.Must(template.New("review").Parse(`<task>
You are reviewing a pull request for a LeetCode study group. Members submit
algorithm solutions weekly. Review the solution for correctness, time and
space complexity, and idiomatic style in the language used.
</task>

<pull_request>
Title: {{.Title}}

{{.Body}}
</pull_request>

<diff>
{{.Diff}}
</diff>

<instructions>
1. Summarize what the solution does in one or two sentences.
2. State the time and space complexity, and whether it can be improved.
3. Point out correctness issues or missed edge cases, if any.
4. Suggest at most three concrete improvements, quoting the relevant lines.
Keep the review encouraging; these are practice solutions, not production
code. Answer in the language the PR description is written in.
</instructions>`))

// promptData binds one PR into the review prompt.
type promptData struct {
	Title string
	Body  string
	Diff  string
}
