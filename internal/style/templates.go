package style

import (
	"maps"
	"slices"
	"sync"
)

// Transitions holds the phrases used to tie an answer back to an earlier
// turn of the conversation.
type Transitions struct {
	Default    string `json:"default" yaml:"default"`
	MoreAbout  string `json:"more_about" yaml:"more_about"`
	HowItWorks string `json:"how_it_works" yaml:"how_it_works"`
	Example    string `json:"example" yaml:"example"`
}

// Template is the fixed copy bundle for one style.
type Template struct {
	Tone            string
	Greeting        string
	Rephrase        string
	Error           string
	FallbackIntro   string
	FallbackRequest string
	EmailSubject    string
	NoMatch         string
	LowConfidence   string
	MultiTopicIntro string
	Connector       string
	SuggestionIntro string
	SuggestedTopics []string
	Transitions     Transitions

	// Emoji enables keyword emoji injection.
	Emoji bool
	// Enthusiasm enables the randomized enthusiastic opener.
	Enthusiasm bool
}

// Override replaces individual template fields. Empty fields keep the
// underlying value. It is the shape knowledge bases use to customise copy.
type Override struct {
	Tone            string      `json:"tone,omitempty" yaml:"tone,omitempty"`
	Greeting        string      `json:"greeting,omitempty" yaml:"greeting,omitempty"`
	Rephrase        string      `json:"rephrase_message,omitempty" yaml:"rephrase_message,omitempty"`
	Error           string      `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	FallbackIntro   string      `json:"fallback_intro,omitempty" yaml:"fallback_intro,omitempty"`
	FallbackRequest string      `json:"fallback_request,omitempty" yaml:"fallback_request,omitempty"`
	EmailSubject    string      `json:"email_subject,omitempty" yaml:"email_subject,omitempty"`
	NoMatch         string      `json:"no_match,omitempty" yaml:"no_match,omitempty"`
	LowConfidence   string      `json:"low_confidence,omitempty" yaml:"low_confidence,omitempty"`
	SuggestedTopics []string    `json:"suggested_topics,omitempty" yaml:"suggested_topics,omitempty"`
	Transitions     Transitions `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

func (t Template) apply(o Override) Template {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&t.Tone, o.Tone)
	set(&t.Greeting, o.Greeting)
	set(&t.Rephrase, o.Rephrase)
	set(&t.Error, o.Error)
	set(&t.FallbackIntro, o.FallbackIntro)
	set(&t.FallbackRequest, o.FallbackRequest)
	set(&t.EmailSubject, o.EmailSubject)
	set(&t.NoMatch, o.NoMatch)
	set(&t.LowConfidence, o.LowConfidence)
	set(&t.Transitions.Default, o.Transitions.Default)
	set(&t.Transitions.MoreAbout, o.Transitions.MoreAbout)
	set(&t.Transitions.HowItWorks, o.Transitions.HowItWorks)
	set(&t.Transitions.Example, o.Transitions.Example)
	if len(o.SuggestedTopics) > 0 {
		t.SuggestedTopics = slices.Clone(o.SuggestedTopics)
	}
	return t
}

// Table is an immutable set of templates, one per style. Tables are built
// once and shared by reference; WithOverrides returns a new table.
type Table struct {
	templates map[Style]Template
}

// Defaults returns the built-in table. It is constructed on first use and
// shared afterwards.
var Defaults = sync.OnceValue(func() *Table {
	return &Table{templates: builtinTemplates()}
})

// Get returns the template for s. The bool is false for unknown styles.
func (t *Table) Get(s Style) (Template, bool) {
	tmpl, ok := t.templates[s]
	if !ok {
		return Template{}, false
	}
	tmpl.SuggestedTopics = slices.Clone(tmpl.SuggestedTopics)
	return tmpl, true
}

// WithOverrides returns a copy of t with the given per-style overrides
// applied. Overrides for unknown styles are ignored.
func (t *Table) WithOverrides(overrides map[Style]Override) *Table {
	out := &Table{templates: maps.Clone(t.templates)}
	for s, o := range overrides {
		base, ok := out.templates[s]
		if !ok {
			continue
		}
		out.templates[s] = base.apply(o)
	}
	return out
}

func builtinTemplates() map[Style]Template {
	return map[Style]Template{
		HR: {
			Tone:            "professional",
			Greeting:        "Hello! I'm happy to walk you through my professional background. What would you like to know?",
			Rephrase:        "I want to make sure I give you accurate information. Could you rephrase your question?",
			Error:           "I'm sorry, something went wrong while preparing that answer. Please try again.",
			FallbackIntro:   "That's a great question, and I'd rather answer it personally.",
			FallbackRequest: "Would you like to send me a message directly? Leave your name and email and I'll follow up.",
			EmailSubject:    "Recruiting inquiry from portfolio",
			NoMatch:         "I don't have specific information on that topic. You could ask about my experience, skills, education or projects.",
			LowConfidence:   "I may not have the full picture on that.",
			MultiTopicIntro: "Regarding your question,",
			Connector:       "Additionally,",
			SuggestionIntro: "You might ask about:",
			SuggestedTopics: []string{"Professional experience", "Technical skills", "Education and certifications", "Notable projects"},
			Transitions: Transitions{
				Default:    "Following up on what we talked about,",
				MoreAbout:  "To expand on that,",
				HowItWorks: "To explain how that works,",
				Example:    "As a concrete example,",
			},
		},
		Developer: {
			Tone:            "technical",
			Greeting:        "Hey! Ask me anything about my stack, projects or how I build things.",
			Rephrase:        "Hmm, I couldn't parse that one. Can you rephrase or be more specific?",
			Error:           "Something broke on my end. Mind trying that again?",
			FallbackIntro:   "Good question, and one I'd rather answer myself than guess at.",
			FallbackRequest: "Drop your name and email and I'll get back to you directly.",
			EmailSubject:    "Technical question from your portfolio",
			NoMatch:         "I don't have details on that. Try asking about frameworks, architecture, projects or tooling.",
			LowConfidence:   "Not 100% sure I have that one covered.",
			MultiTopicIntro: "Great question!",
			Connector:       "Also,",
			SuggestionIntro: "Things you could ask about:",
			SuggestedTopics: []string{"Tech stack", "Frontend frameworks", "Backend and APIs", "Side projects"},
			Transitions: Transitions{
				Default:    "Building on what we discussed,",
				MoreAbout:  "Digging deeper into that,",
				HowItWorks: "Here's how that works under the hood:",
				Example:    "For a concrete example,",
			},
		},
		Friend: {
			Tone:            "casual",
			Greeting:        "Hi there! 👋 Ask me anything, from code to coffee.",
			Rephrase:        "Oops, I didn't quite catch that! Could you say it another way? 😅",
			Error:           "Uh oh, something went sideways! Try again?",
			FallbackIntro:   "Ooh, that's a tricky one! I'd love to answer that myself.",
			FallbackRequest: "Leave your name and email and I'll message you back! ✉️",
			EmailSubject:    "Hey! Message from your portfolio chat",
			NoMatch:         "Hmm, I don't know much about that one! Ask me about projects, hobbies or what I'm learning.",
			LowConfidence:   "Hmm, I'm not totally sure about that one!",
			MultiTopicIntro: "Oh, that's a good one! 😊",
			Connector:       "Oh, and",
			SuggestionIntro: "Maybe try asking about:",
			SuggestedTopics: []string{"Fun projects", "Hobbies", "What I'm learning", "Favorite tools"},
			Transitions: Transitions{
				Default:    "Oh, like we were just chatting about,",
				MoreAbout:  "Ooh, more on that!",
				HowItWorks: "So here's how it works:",
				Example:    "Here's a fun example:",
			},
			Emoji:      true,
			Enthusiasm: true,
		},
	}
}
