package prompt

// Names of the stage prompts registered by NewDefaultManager.
const (
	IntakeExtract     = "intake.extract"
	IntakeExtractUser = "intake.extract_user"
	IntakeSummarize   = "intake.summarize"
	ResearchClassify  = "research.classify"
	ResearchSynthesis = "research.synthesize"
)

var defaults = map[string]string{
	IntakeExtract: `You extract facts about a legal incident from a conversation.
Read the previous conversation history and the current user query. Return a
single JSON object with this shape:
{
  "slots": {
    "date": "", "time": "", "location": "", "parties": "",
    "witnesses": "", "evidence": "", "narrative": ""
  },
  "unknown": [],
  "incident_kind": ""
}
Rules:
- Fill a slot only with facts the user actually stated. Leave it "" otherwise.
- "parties" names the other people or organisations involved (driver, landlord, employer).
- "narrative" is one or two sentences, in the user's terms, describing what happened.
- List in "unknown" the slots the user explicitly said they do not know.
- "incident_kind" is one short lowercase label such as "traffic accident",
  "eviction", "employment", "assault", "consumer" or "other".
- Never give legal advice or opinions.`,

	IntakeExtractUser: `{{if .History}}PREVIOUS CONVERSATION HISTORY:
{{.History}}

----------------
{{end}}CURRENT USER QUERY:
{{.Message}}`,

	IntakeSummarize: `You condense the facts of a legal incident into a short neutral case
summary written in the third person. Use every fact listed, state unknown
facts as unknown, and do not add facts. Do not give legal advice, opinions,
or predictions. Reply with the summary text only.`,

	ResearchClassify: `You are a research assistant for a legal advocate.
Identify the distinct legal issues raised by the case summary, at most {{.MaxIssues}}. For each
issue give a short name, the area of law, and one web search query that
would find the governing statute or leading cases{{if .Jurisdiction}} in {{.Jurisdiction}}{{end}}.
Return a single JSON object:
{"issues":[{"name":"","domain":"","query":""}]}
Return {"issues":[]} when no legal issue can be identified.`,

	ResearchSynthesis: `You are an AI legal advocate assistant. Using only the case summary,
the legal issues and the retrieved evidence provided, write a findings report.
Return a single JSON object with exactly these string fields:
{"facts_summary":"","legal_issues":"","citations":"","analysis":""}
Rules:
- "facts_summary": the key facts in a few sentences.
- "legal_issues": the issues, one per line.
- "citations": statutes, sections or cases, each tied to the evidence source
  number it came from, e.g. "[1] Motor Vehicles Act, s. 184". Cite nothing
  that does not appear in the evidence.
- "analysis": apply the law to the facts and explain the user's rights and
  practical next steps in plain language.`,
}

// NewDefaultManager returns a manager holding every stage prompt.
func NewDefaultManager() *Manager {
	m := NewManager()
	for name, content := range defaults {
		if err := m.RegisterString(name, content); err != nil {
			panic(err)
		}
	}
	return m
}
