package intake

import "strings"

var defaultQuestions = map[Slot]string{
	SlotDate:      "On what date did this happen?",
	SlotTime:      "At roughly what time did it happen?",
	SlotLocation:  "Where did this take place?",
	SlotParties:   "Who else was involved, for example a person, company or authority?",
	SlotWitnesses: "Did anyone else see what happened, and if so, who?",
	SlotEvidence:  "Do you have any records of what happened, such as photos, messages or a police report?",
	SlotNarrative: "Could you describe in your own words what happened?",
}

var kindQuestions = map[string]map[Slot]string{
	"eviction": {
		SlotDate:     "On what date did you receive the eviction notice?",
		SlotTime:     "Did the notice give a time or deadline by which you must leave?",
		SlotLocation: "What is the address of the property you are renting?",
		SlotParties:  "What is the name of your landlord or the company managing the property?",
		SlotEvidence: "Do you have a written lease or a copy of the eviction notice?",
	},
	"traffic accident": {
		SlotDate:     "On what date did the accident happen?",
		SlotTime:     "At roughly what time did the accident happen?",
		SlotLocation: "Where did the accident happen, such as a street name or junction?",
		SlotParties:  "Do you know who was driving the other vehicle?",
	},
	"employment": {
		SlotDate:     "On what date were you dismissed or did the problem at work begin?",
		SlotLocation: "Where is your workplace located?",
		SlotParties:  "What is the name of your employer?",
	},
}

// QuestionFor returns the single clarifying question for slot. Kind picks
// an incident-specific wording when one exists.
func QuestionFor(slot Slot, kind string) string {
	if qs, ok := kindQuestions[kind]; ok {
		if q, ok := qs[slot]; ok {
			return oneQuestion(q)
		}
	}
	return oneQuestion(defaultQuestions[slot])
}

// oneQuestion cuts text after its first question mark so an emitted turn
// never carries two requests.
func oneQuestion(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '?'); i >= 0 {
		return text[:i+1]
	}
	if text == "" {
		return "Could you tell me more about what happened?"
	}
	return text + "?"
}
