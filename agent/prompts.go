package agent

import "github.com/sweetpotato0/studybuddy/router"

const brevityRules = `Response rules:
- Answer in at most 120 words unless told otherwise.
- Lead with the answer, then one short example if it helps.
- Use plain sentences. Avoid headings and long bullet lists.
- Do not include code unless the learner asks for it.
- If you are not sure about something, say so.`

const simpleTemplate = `The learner is a beginner and found the previous explanation hard to follow.
Explain in this exact structure:
1. One-sentence summary in everyday words.
2. An analogy from daily life.
3. Three to five numbered steps, one idea per step.
4. One line starting with "In short:" that repeats the key idea.
No code, no jargon. If a technical word is unavoidable, define it in the same sentence.`

const verboseOverride = `The learner asked for detail. Ignore the word limit and give a thorough,
well-structured explanation with examples.`

const codeOverride = `The learner asked for code. Include a complete, runnable example with a short
explanation of each important line.`

const simplifyReferent = `The learner wants this earlier question explained more simply: %q`

const toolAdvisory = `You have access to these tools:
{{range .Tools}}- {{.Name}}: {{.Description}}
{{end}}
When the learner says:
- "Save this as a note" or "Remember this": use save_note
- "What notes do I have?" or "Show my notes": use get_notes
- "How did I solve..." or "What was my solution for...": use search_solutions
- "Search for..." or "Find the latest...": use web_search

The current subject is: {{.Topic}}`

var modeDirectives = map[router.Mode]string{
	router.ModeAnswer: "Answer the question directly.",
	router.ModeTeach: `Teach the concept step by step, building from what the learner already knows.
End with one short question that checks understanding.`,
	router.ModeQuiz: `Quiz the learner. Ask one question at a time and wait for the answer.
After an answer, say whether it was right and why before asking the next question.`,
	router.ModeDebug: `Help debug. If the error message or code is missing, ask for it.
Otherwise name the most likely cause first, then the fix.`,
	router.ModeClarify:  `The request is ambiguous. Ask exactly one short clarifying question and do not answer yet.`,
	router.ModeSimplify: `Re-explain the previous topic more simply.`,
}

const committedDirective = `The learner has already been asked to clarify twice. Give your best answer
now, stating the assumption you made in one short sentence.`
