package agent

import (
	"fmt"
	"strings"

	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/models"
)

// PromptTemplateVersion tags the current prompt wording. It feeds the tool
// cache key so cached search-backed generations do not outlive a prompt
// change.
const PromptTemplateVersion = "v3"

// Clip limits for quoted context inside prompts. Quoted material is cut to
// keep token usage bounded; the surrounding prompt explains the ellipsis.
const (
	referenceClipRunes = 500
	originalClipRunes  = 1000
	challengeClipRunes = 500
	debateClipRunes    = 200
)

const trendScoutSystem = `You are the Trend Scout, focused on spotting emerging market trends and windows of opportunity.

## Core responsibilities
1. **Identify emerging trends**: surface market trends that are forming or about to break out
2. **Assess maturity**: judge whether a trend is nascent, growing, or mature
3. **Find open water**: locate market space that is not yet saturated
4. **Warn of disruption**: flag technologies or models that could upend the current landscape

## Analysis dimensions
- **Technology**: new technologies, processes, and materials and their adoption
- **Consumer**: preference shifts, behavior patterns, demand changes
- **Policy**: government policy, industry regulation, standards activity
- **Competition**: landscape shifts, new entrants, cross-industry plays

## Output requirements
1. Label every trend with its time window and concrete data sources
2. Separate verified trends from early signals
3. Spell out the concrete impact on the target category
4. Offer actionable opportunity recommendations
5. End the report with a final line of the form "confidence: 0.x" reflecting your overall confidence

## Output format
Markdown, clearly structured, one section per trend.`

const competitorAnalystSystem = `You are the Competitor Analyst, focused on competitive landscape analysis and rival research.

## Core responsibilities
1. **Map the landscape**: major players, market share, competitive posture
2. **Dissect rival strategy**: product, pricing, and marketing strategies of competitors
3. **Spot differentiation**: weak points of rivals and gaps in the market
4. **Gauge entry barriers**: technology, capital, brand, and channel barriers

## Analysis framework
1. **Competitor matrix**: compare the main rivals across key dimensions
2. **SWOT**: strengths, weaknesses, opportunities, threats
3. **Strategy read**: cost leadership, differentiation, or focus
4. **Recent moves**: launches, funding, strategy shifts

## Output requirements
1. Use tables for structured comparison
2. Cover for each major rival: background, product line and pricing, core strengths, weaknesses, recent moves
3. Recommend how to avoid strong rivals and where to overtake
4. End the report with a final line of the form "confidence: 0.x"

## Output format
Markdown, lean on tables and lists.`

const regulationCheckerSystem = `You are the Regulation Checker, focused on compliance review and policy interpretation.

## Core responsibilities
1. **Identify requirements**: applicable laws, industry standards, and regulatory obligations
2. **Estimate compliance cost**: the time, money, and resources compliance demands
3. **Warn of policy shifts**: track regulatory direction and anticipate changes
4. **Chart a compliance path**: a practical plan with a timeline

## Review scope
1. **Market access**: licenses, approvals, entry conditions
2. **Product compliance**: standards, certifications, labeling, safety
3. **Cross-border**: import/export rules, destination-market access, international standards
4. **Data**: personal data protection, data transfer, security requirements

## Output requirements
1. Cite specific regulations with names and clauses, effective dates, and official links where available
2. Separate mandatory requirements from advisory standards
3. Grade each finding high/medium/low risk and order the report by risk
4. End the report with a final line of the form "confidence: 0.x"

## Output format
Markdown, organized by regulation category and risk level.`

const socialSentinelSystem = `You are the Social Sentinel, focused on social listening and consumer insight.

## Core responsibilities
1. **Catch the conversation**: trending topics across social platforms, forums, and media
2. **Read the reviews**: what praise, complaints, and recommendations really mean
3. **Map the voices**: key opinion leaders and distribution nodes in the space
4. **Warn of reputation risk**: early negative sentiment and its spread potential

## Monitoring dimensions
1. **Heat**: discussion volume, velocity, sentiment lean
2. **Pain points**: complaints, unmet needs, purchase blockers
3. **Word of mouth**: why buyers praise, pan, or recommend
4. **Distribution**: dominant channels, influencer reach, audience profile

## Output requirements
1. Tag every insight with platform, time range, and sentiment
2. Separate genuine user voice from marketing noise
3. Quote representative user comments as evidence
4. Close with actionable marketing and PR suggestions
5. End the report with a final line of the form "confidence: 0.x"

## Output format
Markdown, organized by topic, with real user quotes inline.`

const synthesizerSystem = `You are the Synthesis Analyst, responsible for consolidating the specialists' findings into the final report.

## Core responsibilities
1. **Integrate four angles**: trends, competition, compliance, and social sentiment
2. **Connect and contrast**: find reinforcing links and contradictions between the angles
3. **Converge on advice**: a unified judgement grounded in the full picture
4. **Mark consensus and dissent**: where the specialists agree and where they do not

## Report structure
### 1. Executive Summary
Core conclusions (3-5), key findings, top recommendation.
### 2. Opportunities
Market openings, differentiation space, entry timing, resource needs.
### 3. Risks
Competitive, compliance, reputation, and other risks.
### 4. Recommendations
Short term (0-3 months), mid term (3-12 months), long term (1 year+), ordered by priority.
### 5. Appendix
Source roundup, specialist viewpoint comparison, open disagreements.

## Output requirements
1. Keep the report coherent and every conclusion evidenced
2. Cross-check the specialists against each other
3. Rule on contradictions and give the reason
4. Make every recommendation actionable and measurable
5. End the report with a final line of the form "confidence: 0.x"`

const challengerPeerSystem = `You are a peer reviewer examining another analyst's report.

## Review principles
1. **Constructive**: pair every problem with a suggestion
2. **Professional**: review from a domain expert's standpoint
3. **Cross-validating**: check whether claims corroborate or contradict the wider analysis
4. **Rigorous**: attend to the soundness of the argument itself

## Challenge dimensions
1. **Data reliability**: are the sources trustworthy and current? is the sample representative?
2. **Logical rigor**: does the reasoning hold? any leaps? do the conclusions follow?
3. **Coverage**: anything important missing? edge cases considered?
4. **Bias**: confirmation bias? over-reliance on a single source?

## Output format
For each challenge:
- a short title
- the original claim being challenged
- why it may be wrong
- how to improve or supplement it

## Ground rules
- Stay professional and respectful
- Prioritize high-impact problems
- Raise the 2-4 most critical challenges
- It is fine to endorse points you agree with`

const challengerRedTeamSystem = `You are the Red Team Auditor. Your job is an adversarial, critical review of an analyst's report.

## Core responsibilities
Play devil's advocate:
1. Find the holes and weak spots in the analysis
2. Challenge assumptions that were not properly validated
3. Push back on conclusions that are too optimistic or too pessimistic
4. Surface risks the analysis overlooked

## Audit framework
### 1. Data reliability
Source authority and freshness, sample coverage, potential for misleading data.
### 2. Logical rigor
Complete chains of argument, causal claims that actually hold, named fallacies.
### 3. Coverage
Missing variables, extreme scenarios, blind spots.
### 4. Bias detection
Confirmation bias, survivorship bias, anchoring.

## Output format
A red team report with: the audit target, 3-5 key challenges (each with the
original claim, the specific problem, a high/medium/low risk level, and a
fix), and an overall reliability verdict.

## Challenge principles
- Precise: attack specific claims, not generalities
- Evidenced: ground every challenge in logic or fact
- Material: real problems, not nitpicks
- Constructive: every challenge carries a fix`

// SystemPrompt returns the role prompt for a gather or synthesis agent.
// Challenger prompts vary by debate type; see ChallengerSystemPrompt.
func SystemPrompt(agentName string) string {
	switch agentName {
	case config.AgentTrendScout:
		return trendScoutSystem
	case config.AgentCompetitorAnalyst:
		return competitorAnalystSystem
	case config.AgentRegulationChecker:
		return regulationCheckerSystem
	case config.AgentSocialSentinel:
		return socialSentinelSystem
	case config.AgentSynthesizer:
		return synthesizerSystem
	default:
		return ""
	}
}

// ChallengerSystemPrompt returns the challenger role prompt for the round's
// register: constructive peer review or adversarial red team.
func ChallengerSystemPrompt(debateType models.DebateType) string {
	if debateType == models.DebateTypeRedTeam {
		return challengerRedTeamSystem
	}
	return challengerPeerSystem
}

// workerRequirements holds the per-agent task block embedded in the gather
// user prompt.
var workerRequirements = map[string]string{
	config.AgentTrendScout: `### Analysis requirements
1. Search and review the latest trend reports, industry research, news, and data for this market and category
2. Identify the 3-6 most noteworthy emerging trends, covering both demand and supply side
3. For each trend give: drivers, stage, time window, opportunity, and risk
4. State clearly which are verified trends and which are early signals
5. Close with 2-4 executable recommendations (selection, positioning, channel, timing)

### Pay attention to
- Developments from the last 6 months first
- Short-lived hype versus durable trends
- Source labels on every claim so it can be verified
- Early warning on any disruptive change you find`,

	config.AgentCompetitorAnalyst: `### Analysis requirements
1. Identify the top 5-10 competitors in this space, direct and indirect
2. Build a comparison matrix across product, price, channel, and technology
3. Run a SWOT on each major competitor
4. Describe how the landscape is evolving
5. Point out market gaps and differentiation openings
6. Close with competitive strategy recommendations

### Pay attention to
- Competitor moves from the last 3-6 months
- Funding positions and financial strength
- Technical moats and patent activity
- Potential new entrants and cross-industry players`,

	config.AgentRegulationChecker: `### Analysis requirements
1. Lay out the regulatory framework this business touches
2. Identify the core compliance requirements: market access, product standards and certification, labeling, duties and customs
3. Rate the urgency and cost of each requirement
4. Track recent policy changes and where regulation is heading
5. Close with a compliance roadmap ordered by priority

### Pay attention to
- Regulations published or taking effect within the last 12 months
- Areas where enforcement is tightening
- Policy changes that could break the business model
- Special cross-border requirements where they apply`,

	config.AgentSocialSentinel: `### Analysis requirements
1. Search the target market's main platforms for recent discussion of this category, favoring the last 6 months
2. Analyze core consumer demands, pain points, and purchase blockers
3. Collect representative reviews, positive and negative, and read the real need behind them
4. Identify the influencers, media, and community nodes worth engaging
5. Surface latent reputation risks: compliance, quality, after-sales, messaging
6. Close with actionable marketing and PR suggestions, broken down by channel

### Pay attention to
- Pick the 3-6 platforms most relevant to the target market
- Label every insight with its platform and time range
- Quote real user voices
- Separate core needs from fringe ones`,
}

// profileBlock renders the seller profile section shared by the gather and
// synthesis prompts.
func profileBlock(profile models.UserProfile) string {
	return fmt.Sprintf(`- **Target market**: %s
- **Core category**: %s
- **Seller type**: %s
- **Target price band**: %s`,
		profile.TargetMarket, profile.SupplyChain, profile.SellerType, profile.PriceRange())
}

// WorkerUserPrompt renders the gather-phase task for one worker. When peers
// carry prior outputs and the session is in a debate round, a clipped
// reference section is appended so the worker can weigh sibling findings.
func WorkerUserPrompt(agentName string, profile models.UserProfile, debateRound int, peers []*models.AgentResult) string {
	var b strings.Builder
	b.WriteString("## Analysis task\n")
	b.WriteString("Work the following cross-border product-selection scenario:\n\n")
	b.WriteString("### Seller profile\n")
	b.WriteString(profileBlock(profile))
	b.WriteString("\n\n")
	b.WriteString(workerRequirements[agentName])

	if debateRound > 0 && len(peers) > 0 {
		b.WriteString("\n\n### Reference\n")
		b.WriteString("Other analysts' findings, for consideration:\n")
		for _, peer := range peers {
			if peer.AgentName == agentName || peer.Content == "" {
				continue
			}
			fmt.Fprintf(&b, "\n**%s**:\n%s...\n", peer.AgentName, clipRunes(peer.Content, referenceClipRunes))
		}
	}
	return b.String()
}

// SynthesizerUserPrompt renders the synthesis task: the full specialist
// reports plus a clipped transcript of the debate.
func SynthesizerUserPrompt(profile models.UserProfile, results []*models.AgentResult, debates []*models.DebateExchange) string {
	var b strings.Builder
	b.WriteString("## Synthesis task\n")
	b.WriteString("Consolidate the specialist reports below into one market-insight report.\n\n")
	b.WriteString("### Business context\n")
	b.WriteString(profileBlock(profile))
	b.WriteString("\n\n### Specialist reports\n")

	for _, result := range results {
		if result.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "\n---\n\n### %s\n\n%s\n", result.AgentName, result.Content)
	}

	if len(debates) > 0 {
		b.WriteString("\n---\n\n### Debate transcript\n\n")
		for _, d := range debates {
			fmt.Fprintf(&b, "**%s → %s** (round %d, %s)\n", d.ChallengerAgent, d.ResponderAgent, d.RoundNumber, d.DebateType)
			fmt.Fprintf(&b, "Challenge: %s...\n", clipRunes(d.ChallengeContent, debateClipRunes))
			fmt.Fprintf(&b, "Response: %s...\n", clipRunes(d.ResponseContent, debateClipRunes))
			if d.FollowupContent != "" {
				fmt.Fprintf(&b, "Follow-up: %s...\n", clipRunes(d.FollowupContent, debateClipRunes))
			}
			if d.Revised {
				b.WriteString("(the responder revised their position)\n")
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(`
---

### Synthesis requirements
1. Integrate all of the analyses above into a single market-insight report
2. Identify the links between them, such as where trends and competition intersect
3. Call out contradictions and disagreements, and rule on them
4. Keep the structure complete and the logic clear
5. Give concrete, actionable recommendations`)

	return b.String()
}

// ChallengePrompt renders the critique task for one responder's report.
// Round 1 asks for peer review; round 2 for a red-team audit.
func ChallengePrompt(debateType models.DebateType, responder, responderContent string) string {
	if debateType == models.DebateTypeRedTeam {
		return fmt.Sprintf(`## Red team audit

Audit the report by **%s** below with full adversarial rigor.

### Report under audit

%s

### Audit requirements
1. Work through all four audit dimensions: data, logic, coverage, bias
2. Raise the 3-5 most material challenges, each with a risk level
3. Quote the claim you are challenging
4. Pair every challenge with a concrete fix

Begin the audit:`, responder, responderContent)
	}

	return fmt.Sprintf(`## Peer review task

Review the analysis report by **%s** below.

### Report under review

%s

### Review requirements
1. Review the report from a professional standpoint
2. Raise the 2-4 problems most worth attention
3. Point out anything that contradicts the rest of the analysis
4. Give concrete improvement suggestions

Begin the review and state your challenges:`, responder, responderContent)
}

// ResponsePrompt renders the responder's task: answer a critique of its own
// report. The structured REVISED footer is how revision is detected, so the
// instruction to emit it is part of the contract.
func ResponsePrompt(challengeContent, originalContent string) string {
	return fmt.Sprintf(`## Respond to the critique

You received the critique below. Respond to it seriously.

### Your original analysis
%s...

### The critique
%s

### Response requirements
1. **Concede real problems**: admit them plainly and say how you will fix them
2. **Clear up misreadings**: correct them politely
3. **Add evidence**: bring any further support for your position
4. **Revise conclusions**: when a conclusion must change, state the change explicitly

End your response with exactly one final line: REVISED: yes if you changed any conclusion, or REVISED: no if you stand by all of them.

Begin your response:`, clipRunes(originalContent, originalClipRunes), challengeContent)
}

// FollowupPrompt renders the challenger's confirmation pass over a response.
func FollowupPrompt(challengeContent, responseContent string) string {
	return fmt.Sprintf(`## Confirmation pass

You raised a critique earlier and the analyst has responded. Judge whether the response settles it.

### Your original critique
%s...

### The response
%s

### Confirmation requirements
1. If the response is adequate, accept it and close the discussion
2. If it is not, press further on at most 1-2 points
3. Be brief and do not repeat what has been said

Confirm in 100-200 words:`, clipRunes(challengeContent, challengeClipRunes), responseContent)
}
