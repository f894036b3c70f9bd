// Package builtin provides the study tools the responder can call: notes,
// past solutions and web search.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sweetpotato0/studybuddy/contrib/websearch"
	"github.com/sweetpotato0/studybuddy/study"
	"github.com/sweetpotato0/studybuddy/tool"
	"github.com/sweetpotato0/studybuddy/topic"
)

// UnavailableMessage is returned by web_search when no searcher is configured.
const UnavailableMessage = "Web search is unavailable. Please set the TAVILY_API_KEY environment variable."

var subjectDescription = "The subject (" + strings.Join(topic.Names(topic.Specific), ", ") + ")"

func subjectParam() tool.Parameter {
	return tool.Parameter{Name: "subject", Type: "string", Description: subjectDescription, Required: true}
}

func tagsParam() tool.Parameter {
	return tool.Parameter{Name: "tags", Type: "array", Items: "string", Description: "Optional tags for categorization"}
}

// Tools returns every built-in tool. A nil searcher makes web_search report
// that search is unavailable.
func Tools(store study.Store, searcher websearch.Searcher, maxResults int) []*tool.Tool {
	return append(StudyTools(store), WebSearch(searcher, maxResults))
}

// StudyTools returns the note and solution tools bound to store.
func StudyTools(store study.Store) []*tool.Tool {
	return []*tool.Tool{
		SaveNote(store),
		GetNotes(store),
		SearchNotes(store),
		SaveSolution(store),
		GetSolutions(store),
		SearchSolutions(store),
	}
}

// subjectArg resolves the subject argument. Unknown subjects map to general;
// the raw text is kept for messages.
func subjectArg(args map[string]any) (topic.Topic, string) {
	raw := tool.StringArg(args, "subject")
	t, _ := topic.ParseSubject(raw)
	return t, raw
}

// SaveNote saves a study note.
func SaveNote(store study.Store) *tool.Tool {
	return &tool.Tool{
		Name:        "save_note",
		Description: "Save a study note for a specific subject.",
		Parameters: []tool.Parameter{
			{Name: "content", Type: "string", Description: "The note content to save", Required: true},
			subjectParam(),
			tagsParam(),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			t, _ := subjectArg(args)
			note, err := store.AddNote(ctx, t, tool.StringArg(args, "content"), tool.StringSliceArg(args, "tags"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Note saved successfully! ID: %s", note.ID), nil
		},
	}
}

// GetNotes lists a subject's notes.
func GetNotes(store study.Store) *tool.Tool {
	return &tool.Tool{
		Name:        "get_notes",
		Description: "Retrieve all notes for a specific subject.",
		Parameters:  []tool.Parameter{subjectParam()},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			t, raw := subjectArg(args)
			notes, err := store.ListNotes(ctx, t)
			if err != nil {
				return "", err
			}
			if len(notes) == 0 {
				return fmt.Sprintf("No notes found for %s.", raw), nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Notes for %s (%d total):\n\n", raw, len(notes))
			for i, n := range notes {
				tags := ""
				if len(n.Tags) > 0 {
					tags = fmt.Sprintf(" [Tags: %s]", strings.Join(n.Tags, ", "))
				}
				fmt.Fprintf(&b, "%d. %s%s\n\n", i+1, n.Content, tags)
			}
			return b.String(), nil
		},
	}
}

// SearchNotes searches a subject's notes by keyword.
func SearchNotes(store study.Store) *tool.Tool {
	return &tool.Tool{
		Name:        "search_notes",
		Description: "Search notes by keyword within a subject.",
		Parameters: []tool.Parameter{
			{Name: "query", Type: "string", Description: "The search keyword", Required: true},
			subjectParam(),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			t, raw := subjectArg(args)
			query := tool.StringArg(args, "query")
			notes, err := store.SearchNotes(ctx, t, query)
			if err != nil {
				return "", err
			}
			if len(notes) == 0 {
				return fmt.Sprintf("No notes matching '%s' found in %s.", query, raw), nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Found %d notes matching '%s':\n\n", len(notes), query)
			for i, n := range notes {
				fmt.Fprintf(&b, "%d. %s\n\n", i+1, n.Content)
			}
			return b.String(), nil
		},
	}
}

// SaveSolution saves a problem-solution pair.
func SaveSolution(store study.Store) *tool.Tool {
	return &tool.Tool{
		Name:        "save_solution",
		Description: "Save a problem-solution pair from past experience.",
		Parameters: []tool.Parameter{
			{Name: "problem", Type: "string", Description: "Description of the problem encountered", Required: true},
			{Name: "solution", Type: "string", Description: "How the problem was solved", Required: true},
			subjectParam(),
			tagsParam(),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			t, _ := subjectArg(args)
			sol, err := store.AddSolution(ctx, t,
				tool.StringArg(args, "problem"), tool.StringArg(args, "solution"), tool.StringSliceArg(args, "tags"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Solution saved successfully! ID: %s", sol.ID), nil
		},
	}
}

// GetSolutions lists a subject's solutions.
func GetSolutions(store study.Store) *tool.Tool {
	return &tool.Tool{
		Name:        "get_solutions",
		Description: "Retrieve all solutions for a specific subject.",
		Parameters:  []tool.Parameter{subjectParam()},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			t, raw := subjectArg(args)
			solutions, err := store.ListSolutions(ctx, t)
			if err != nil {
				return "", err
			}
			if len(solutions) == 0 {
				return fmt.Sprintf("No solutions found for %s.", raw), nil
			}
			return formatSolutions(fmt.Sprintf("Solutions for %s (%d total):\n\n", raw, len(solutions)), solutions), nil
		},
	}
}

// SearchSolutions searches past solutions by keyword.
func SearchSolutions(store study.Store) *tool.Tool {
	return &tool.Tool{
		Name:        "search_solutions",
		Description: "Search for past solutions by keyword.",
		Parameters: []tool.Parameter{
			{Name: "query", Type: "string", Description: `The search keyword (e.g. "async error", "import issue")`, Required: true},
			subjectParam(),
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			t, raw := subjectArg(args)
			query := tool.StringArg(args, "query")
			solutions, err := store.SearchSolutions(ctx, t, query)
			if err != nil {
				return "", err
			}
			if len(solutions) == 0 {
				return fmt.Sprintf("No solutions matching '%s' found in %s.", query, raw), nil
			}
			return formatSolutions(fmt.Sprintf("Found %d solutions matching '%s':\n\n", len(solutions), query), solutions), nil
		},
	}
}

func formatSolutions(header string, solutions []*study.Solution) string {
	var b strings.Builder
	b.WriteString(header)
	for i, s := range solutions {
		fmt.Fprintf(&b, "%d. Problem: %s\n   Solution: %s\n\n", i+1, s.Problem, s.Solution)
	}
	return b.String()
}

// WebSearch searches the web for current information.
func WebSearch(searcher websearch.Searcher, maxResults int) *tool.Tool {
	if maxResults <= 0 {
		maxResults = websearch.DefaultMaxResults
	}
	return &tool.Tool{
		Name:        "web_search",
		Description: "Search the web for the latest information on a topic.",
		Parameters: []tool.Parameter{
			{Name: "query", Type: "string", Description: `The search query (e.g. "LangGraph latest features")`, Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if searcher == nil {
				return UnavailableMessage, nil
			}
			query := tool.StringArg(args, "query")
			results, err := searcher.Search(ctx, query, maxResults)
			switch {
			case errors.Is(err, websearch.ErrUnavailable):
				return UnavailableMessage, nil
			case err != nil:
				return fmt.Sprintf("Web search failed: %v", err), nil
			case len(results) == 0:
				return fmt.Sprintf("No results found for '%s'.", query), nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Web search results for '%s':\n\n", query)
			for i, r := range results {
				title := r.Title
				if title == "" {
					title = "No title"
				}
				snippet := r.Snippet
				if snippet == "" {
					snippet = "No description"
				}
				fmt.Fprintf(&b, "%d. %s\n   %s\n   URL: %s\n\n", i+1, title, snippet, r.URL)
			}
			return b.String(), nil
		},
	}
}
