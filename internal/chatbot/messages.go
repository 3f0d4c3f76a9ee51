package chatbot

import (
	"fmt"
	"html"
	"strings"

	"paygate/internal/domain"
)

func accessRequiredMessage(purchaseURL string) string {
	return `🔒 <b>Access Required</b>

To unlock the strategic consultation system you need Founder's Access.

<b>What's included:</b>
• Unlimited AI business strategy consultation
• High-ticket offer development frameworks
• Market positioning and client acquisition strategies
• Execution roadmaps and implementation guides

Get lifetime access at: ` + purchaseURL + `

<i>Transform your expertise into recurring monthly revenue.</i>`
}

const welcomeMessage = `🎯 <b>Welcome, your access is confirmed</b>

Before we start I need to learn about your situation. Answer a few quick questions and I'll tailor every recommendation to you.`

const welcomeBackMessage = `🎯 <b>Welcome back</b>

Tell me what skill you want to monetize, your current challenge or what you're trying to achieve.`

const accessGrantedMessage = `✅ <b>Payment confirmed</b>

Your access is active. Send /start to set up your profile.`

const helpMessage = `<b>Commands</b>
/start - begin or resume onboarding
/progress - show onboarding progress
/help - show this message

Once your profile is complete, just send a message to get strategic advice.`

const unknownCommandMessage = "Unknown command. Send /help to see what I can do."

func capabilitiesMessage(user *domain.User) string {
	first := "Agent"
	if user.ProfileSummary != nil {
		if fields := strings.Fields(user.ProfileSummary.BasicInfo.Name); len(fields) > 0 {
			first = fields[0]
		}
	}
	return fmt.Sprintf(`Intelligence processed, %s. Your profile is locked and loaded.

<b>CAPABILITIES OVERVIEW</b>

<b>🎯 STRATEGIC PLANNING</b>
• High-ticket offer development
• Market positioning and validation
• Revenue optimization strategies

<b>📈 MARKETING &amp; CONTENT</b>
• Viral video scripts and hooks
• Content strategies that convert
• Sales funnel architecture

<b>💼 BUSINESS OPERATIONS</b>
• Client acquisition systems
• Pricing and value proposition
• Scaling and systemization

<b>QUICK-START TEMPLATES</b>
"Create a high-ticket offer for my [SKILL] targeting [CLIENT TYPE] with [BUDGET RANGE] budgets"
"Write a viral video script about [TOPIC] for my [NICHE] audience"
"Build a 30-day content calendar for [BUSINESS TYPE] focusing on [MAIN BENEFIT]"

<b>Ready for deployment. What's your first mission?</b>`, html.EscapeString(first))
}

func questionMessage(q *domain.Question, position, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Question %d/%d</b>\n%s", position, total, html.EscapeString(q.Prompt))
	if len(q.Options) > 0 {
		b.WriteString("\n")
		for i, opt := range q.Options {
			fmt.Fprintf(&b, "\n%d. %s", i+1, html.EscapeString(opt))
		}
	}
	switch {
	case q.Kind == domain.InputMultipleChoice:
		b.WriteString("\n\n<i>Reply with one or more numbers separated by commas.</i>")
	case len(q.Options) > 0:
		b.WriteString("\n\n<i>Reply with the number of your choice.</i>")
	case !q.Required:
		b.WriteString("\n\n<i>Optional: send - to skip.</i>")
	}
	return b.String()
}

func progressMessage(percent int, next *domain.Question, completed bool) string {
	if completed {
		return fmt.Sprintf("✅ Your profile is complete (%d%% answered). Ask me anything.", percent)
	}
	msg := fmt.Sprintf("📊 Onboarding is %d%% complete.", percent)
	if next != nil {
		msg += "\n\nNext up: " + html.EscapeString(next.Prompt)
	}
	return msg
}

func invalidAnswerMessage(reason string) string {
	return "⚠️ " + html.EscapeString(reason) + "\n\n"
}
