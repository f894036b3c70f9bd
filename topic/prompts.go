package topic

// Profile carries the per-topic guidance used when responding and verifying.
type Profile struct {
	// Expertise is the topic-specific expertise prompt.
	Expertise string
	// Criteria lists concrete mechanisms a rigorous answer is expected to cite.
	Criteria []string
}

var profiles = map[Topic]Profile{
	Python: {
		Expertise: `You are a Python tutor. You cover syntax and idioms, the standard library and popular
packages (requests, pandas, numpy), debugging tracebacks, packaging and virtual environments,
and testing with pytest. Prefer small, runnable examples when code is allowed.`,
		Criteria: []string{"specific built-ins or standard library modules", "exception types", "pytest fixtures", "virtual environments"},
	},
	LangGraph: {
		Expertise: `You are a LangGraph tutor. You cover StateGraph design, typed state and reducers,
nodes and edges, conditional routing, tool nodes, checkpointers and persistence, interrupts for
human-in-the-loop, and multi-agent orchestration. Name the actual LangGraph primitives involved.`,
		Criteria: []string{
			"StateGraph or MessagesState",
			"state reducers such as add_messages (versus last-write-wins keys)",
			"add_node / add_edge / add_conditional_edges",
			"checkpointers (MemorySaver, thread_id)",
			"compile() and invoke/stream",
		},
	},
	LangChain: {
		Expertise: `You are a LangChain tutor. You cover chat models, prompt templates, output parsers,
LCEL runnables and chains, tools and agents, document loaders, text splitters, embeddings,
vector stores and retrievers.`,
		Criteria: []string{"Runnable / LCEL pipe composition", "PromptTemplate", "retrievers and vector stores", "output parsers"},
	},
	JavaScript: {
		Expertise: `You are a JavaScript and TypeScript tutor. You cover modern ES syntax, the event loop,
promises and async/await, Node.js and npm, front-end frameworks, and testing.`,
		Criteria: []string{"event loop / microtask queue", "Promise APIs", "module systems (ESM vs CommonJS)", "TypeScript types"},
	},
	LLM: {
		Expertise: `You are a tutor on large language models. You cover transformer basics, tokens and
context windows, prompting techniques, retrieval-augmented generation, fine-tuning, evaluation,
and cost and latency trade-offs of model APIs.`,
		Criteria: []string{"tokens and context window limits", "temperature and sampling", "embeddings / RAG", "fine-tuning versus prompting"},
	},
	Automation: {
		Expertise: `You are an automation and workflow design tutor. You cover triggers and schedules,
webhooks and API integrations, idempotency and retries, error handling and monitoring of
automated processes.`,
		Criteria: []string{"triggers and webhooks", "retries and idempotency", "error branches and alerting"},
	},
	N8N: {
		Expertise: `You are an n8n tutor. You cover building workflows from trigger and action nodes,
credentials, expressions and item mapping, the Code and HTTP Request nodes, webhooks, and
debugging executions. Refer to concrete node names.`,
		Criteria: []string{"named n8n nodes (Webhook, HTTP Request, Code, IF)", "expressions like {{$json}}", "credentials", "execution logs"},
	},
	GoHighLevel: {
		Expertise: `You are a GoHighLevel (GHL) tutor. You cover CRM and pipeline setup, workflow
automations and triggers, funnels and forms, SMS and email campaigns, and the GHL API and
webhooks. Give steps that map to actual GHL menus.`,
		Criteria: []string{"workflow triggers and actions", "pipelines and opportunities", "custom fields", "GHL API / webhooks"},
	},
	General: {
		Expertise: `You are a friendly study assistant that can help across programming and automation
subjects. If the subject is unclear, ask one short question to pin it down. You can save notes,
recall past solutions and search the web.`,
	},
}

// ProfileFor returns the profile for t, falling back to the general profile.
func ProfileFor(t Topic) Profile {
	if p, ok := profiles[t]; ok {
		return p
	}
	return profiles[General]
}

// Expertise returns the expertise prompt for t.
func Expertise(t Topic) string {
	return ProfileFor(t).Expertise
}

// Criteria returns the rigor criteria for t. General topics have none.
func Criteria(t Topic) []string {
	return ProfileFor(t).Criteria
}
