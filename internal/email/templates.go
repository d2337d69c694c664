package email

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"governance-agent/internal/models"

	"golang.org/x/xerrors"
)

// Template tags, also used as the metrics label.
const (
	TagDigest        = "digest"
	TagVoteSubmitted = "vote_submitted"
	TagVoteConfirmed = "vote_confirmed"
	TagVoteError     = "vote_error"
	TagClarify       = "clarify"
	TagAnswer        = "answer"
	TagHelp          = "help"
	TagNoMore        = "no_more"
)

const htmlSource = `
{{define "header"}}<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">{{end}}
{{define "footer"}}<div style="margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666;"><p>This email was sent by your DAO governance agent. Reply to this email to vote or ask a question.</p></div></div>{{end}}
{{define "card"}}<div style="background-color: #f5f5f5; padding: 15px; border-radius: 5px; margin-bottom: 20px;">
<h3 style="margin-top: 0;">{{.Title}}</h3>
<p>{{.Summary}}</p>
<p><strong>Protocol:</strong> {{.Protocol}}{{if .Status}} &middot; <strong>Status:</strong> {{.Status}}{{end}}</p>
{{if .Ends}}<p><strong>Voting ends:</strong> {{.Ends}}</p>{{end}}
{{if .Choices}}<p><strong>Choices:</strong> {{join .Choices ", "}}</p>{{end}}
<p><strong>To vote, reply with:</strong><br>
<code style="background-color: #e0e0e0; padding: 5px; border-radius: 3px;">Vote YES on {{.ID}}</code><br>
<code style="background-color: #e0e0e0; padding: 5px; border-radius: 3px; margin-top: 5px; display: inline-block;">Vote NO on {{.ID}}</code></p>
</div>{{end}}

{{define "digest"}}{{template "header"}}
<h2>Hello {{.Name}},</h2>
<p>{{if .More}}Here are more governance proposals waiting for your vote:{{else}}Here are your top governance proposals that need your attention:{{end}}</p>
{{range .Proposals}}{{template "card" .}}{{end}}
<p>To see more proposals, reply with "Show more proposals".</p>
<p>You can also ask questions about any proposal by replying to this email.</p>
{{template "footer"}}{{end}}

{{define "vote_submitted"}}{{template "header"}}
<h2>Vote submitted</h2>
<p>Your vote is on its way to {{.DestinationChain}}:</p>
<div style="background-color: #f5f5f5; padding: 15px; border-radius: 5px; margin: 15px 0;">
<p><strong>Proposal:</strong> {{.ProposalTitle}}</p>
<p><strong>Your vote:</strong> {{.Choice}}</p>
<p><strong>Message ID:</strong> {{.MessageID}}</p>
{{if .TxHash}}<p><strong>Source transaction:</strong> {{.TxHash}}</p>{{end}}
</div>
<p>We will email you again once it has been executed on the destination chain.</p>
{{template "footer"}}{{end}}

{{define "vote_confirmed"}}{{template "header"}}
<h2>Vote confirmed</h2>
<p>Your vote has been executed:</p>
<div style="background-color: #f5f5f5; padding: 15px; border-radius: 5px; margin: 15px 0;">
<p><strong>Proposal:</strong> {{.ProposalTitle}}</p>
<p><strong>Your vote:</strong> {{.Choice}}</p>
<p><strong>Chain:</strong> {{.DestinationChain}}</p>
{{if .TxHash}}<p><strong>Transaction hash:</strong> {{.TxHash}}</p>{{end}}
</div>
<p>Thank you for participating in governance!</p>
{{template "footer"}}{{end}}

{{define "vote_error"}}{{template "header"}}
<h2>We could not submit your vote</h2>
{{if .ProposalID}}<p><strong>Proposal:</strong> {{.ProposalID}}</p>{{end}}
<p>{{.Details}}</p>
{{template "footer"}}{{end}}

{{define "clarify"}}{{template "header"}}
<h2>Hello {{.Name}},</h2>
<p>We understood that you want to vote, but your reply did not include {{.Missing}}.</p>
<p>Please reply with a line like <code>Vote YES on &lt;proposal id&gt;</code>.</p>
{{range .Proposals}}{{template "card" .}}{{end}}
{{template "footer"}}{{end}}

{{define "answer"}}{{template "header"}}
{{if .ProposalTitle}}<h2>About: {{.ProposalTitle}}</h2>{{else}}<h2>Your question</h2>{{end}}
<p><em>{{.Question}}</em></p>
{{range .Paragraphs}}<p>{{.}}</p>{{end}}
{{template "footer"}}{{end}}

{{define "help"}}{{template "header"}}
<h2>Hello {{.Name}},</h2>
<p>I can help with three things. Reply with:</p>
<ul>
<li><code>Vote YES on &lt;proposal id&gt;</code> (or NO / ABSTAIN) to vote</li>
<li>a question about a proposal, for example <code>What does &lt;proposal id&gt; change?</code></li>
<li><code>Show more proposals</code> to see more open proposals</li>
</ul>
{{template "footer"}}{{end}}

{{define "no_more"}}{{template "header"}}
<h2>Hello {{.Name}},</h2>
<p>There are no more open proposals waiting for your vote right now.</p>
{{template "footer"}}{{end}}
`

const textSource = `
{{define "footer"}}
---
This email was sent by your DAO governance agent. Reply to this email to vote or ask a question.
{{end}}
{{define "card"}}
* {{.Title}}
  {{.Summary}}
  Protocol: {{.Protocol}}{{if .Status}} | Status: {{.Status}}{{end}}
{{- if .Ends}}
  Voting ends: {{.Ends}}{{end}}
{{- if .Choices}}
  Choices: {{join .Choices ", "}}{{end}}
  To vote, reply with "Vote YES on {{.ID}}" or "Vote NO on {{.ID}}"
{{end}}

{{define "digest"}}Hello {{.Name}},

{{if .More}}Here are more governance proposals waiting for your vote:{{else}}Here are your top governance proposals that need your attention:{{end}}
{{range .Proposals}}{{template "card" .}}{{end}}
To see more proposals, reply with "Show more proposals".
You can also ask questions about any proposal by replying to this email.
{{template "footer"}}{{end}}

{{define "vote_submitted"}}Vote submitted

Your vote is on its way to {{.DestinationChain}}:

Proposal: {{.ProposalTitle}}
Your vote: {{.Choice}}
Message ID: {{.MessageID}}
{{- if .TxHash}}
Source transaction: {{.TxHash}}{{end}}

We will email you again once it has been executed on the destination chain.
{{template "footer"}}{{end}}

{{define "vote_confirmed"}}Vote confirmed

Your vote has been executed:

Proposal: {{.ProposalTitle}}
Your vote: {{.Choice}}
Chain: {{.DestinationChain}}
{{- if .TxHash}}
Transaction hash: {{.TxHash}}{{end}}

Thank you for participating in governance!
{{template "footer"}}{{end}}

{{define "vote_error"}}We could not submit your vote
{{if .ProposalID}}
Proposal: {{.ProposalID}}{{end}}

{{.Details}}
{{template "footer"}}{{end}}

{{define "clarify"}}Hello {{.Name}},

We understood that you want to vote, but your reply did not include {{.Missing}}.
Please reply with a line like "Vote YES on <proposal id>".
{{range .Proposals}}{{template "card" .}}{{end}}
{{- template "footer"}}{{end}}

{{define "answer"}}{{if .ProposalTitle}}About: {{.ProposalTitle}}{{else}}Your question{{end}}

> {{.Question}}

{{.Answer}}
{{template "footer"}}{{end}}

{{define "help"}}Hello {{.Name}},

I can help with three things. Reply with:

- "Vote YES on <proposal id>" (or NO / ABSTAIN) to vote
- a question about a proposal, for example "What does <proposal id> change?"
- "Show more proposals" to see more open proposals
{{template "footer"}}{{end}}

{{define "no_more"}}Hello {{.Name}},

There are no more open proposals waiting for your vote right now.
{{template "footer"}}{{end}}
`

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.New("email").Funcs(htmltemplate.FuncMap{"join": strings.Join}).Parse(htmlSource))
	textTemplates = texttemplate.Must(texttemplate.New("email").Funcs(texttemplate.FuncMap{"join": strings.Join}).Parse(textSource))
)

// ProposalView is a proposal as shown in an email.
type ProposalView struct {
	ID       string
	Title    string
	Summary  string
	Protocol string
	Status   string
	Ends     string
	Choices  []string
}

func viewProposals(proposals []models.Proposal) []ProposalView {
	out := make([]ProposalView, 0, len(proposals))
	for _, p := range proposals {
		v := ProposalView{
			ID:       p.ID,
			Title:    p.Title,
			Summary:  p.Summary,
			Protocol: p.Protocol,
			Status:   p.Status,
			Choices:  p.Choices,
		}
		if p.EndTimestamp > 0 {
			v.Ends = p.EndTime().Format(time.RFC1123)
		}
		out = append(out, v)
	}
	return out
}

func render(to, subject, tag string, data interface{}) (Message, error) {
	var h, t bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&h, tag, data); err != nil {
		return Message{}, xerrors.Errorf("render %s html: %w", tag, err)
	}
	if err := textTemplates.ExecuteTemplate(&t, tag, data); err != nil {
		return Message{}, xerrors.Errorf("render %s text: %w", tag, err)
	}
	return Message{
		To:      to,
		Subject: subject,
		HTML:    strings.TrimSpace(h.String()),
		Text:    strings.TrimSpace(t.String()),
		Tag:     tag,
	}, nil
}

// Digest lists proposals with reply instructions. more marks a follow-up
// batch requested with "show more".
func Digest(to, name string, proposals []models.Proposal, more bool) (Message, error) {
	subject := "Your DAO Governance Digest"
	if more {
		subject = "More DAO Governance Proposals"
	}
	return render(to, subject, TagDigest, struct {
		Name      string
		More      bool
		Proposals []ProposalView
	}{name, more, viewProposals(proposals)})
}

// VoteView is a vote as shown in an email.
type VoteView struct {
	ProposalTitle    string
	Choice           string
	DestinationChain string
	MessageID        string
	TxHash           string
}

func VoteSubmitted(to string, v VoteView) (Message, error) {
	return render(to, "Vote Submitted: "+v.ProposalTitle, TagVoteSubmitted, v)
}

// VoteConfirmed reports a vote executed on the destination chain.
func VoteConfirmed(to string, vote models.Vote) (Message, error) {
	return render(to, "Vote Confirmation: "+vote.ProposalTitle, TagVoteConfirmed, VoteView{
		ProposalTitle:    vote.ProposalTitle,
		Choice:           vote.Choice,
		DestinationChain: vote.DestinationChain,
		MessageID:        vote.MessageIDValue(),
		TxHash:           vote.DestinationTxHashValue(),
	})
}

func VoteError(to, proposalID, details string) (Message, error) {
	return render(to, "We could not submit your vote", TagVoteError, struct {
		ProposalID string
		Details    string
	}{proposalID, details})
}

// Clarify asks for the missing part of a vote command.
func Clarify(to, name, missing string, proposals []models.Proposal) (Message, error) {
	return render(to, "Which proposal and choice?", TagClarify, struct {
		Name      string
		Missing   string
		Proposals []ProposalView
	}{name, missing, viewProposals(proposals)})
}

func Answer(to, question, answer, proposalTitle string) (Message, error) {
	subject := "Re: your governance question"
	if proposalTitle != "" {
		subject = "Re: " + proposalTitle
	}
	var paragraphs []string
	for _, p := range strings.Split(answer, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return render(to, subject, TagAnswer, struct {
		Question      string
		Answer        string
		Paragraphs    []string
		ProposalTitle string
	}{question, answer, paragraphs, proposalTitle})
}

func Help(to, name string) (Message, error) {
	return render(to, "How to use your governance agent", TagHelp, struct{ Name string }{name})
}

func NoMore(to, name string) (Message, error) {
	return render(to, "No more proposals", TagNoMore, struct{ Name string }{name})
}
