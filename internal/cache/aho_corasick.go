// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package cache

import (
	"strings"
	"sync"
)

// AhoCorasick finds all occurrences of multiple patterns in a text in
// O(n + m + z) time (n = text length, m = total pattern length,
// z = matches). The detectors use it for injection-signature and
// automation user-agent scanning, where checking dozens of substrings
// per request individually would be wasteful.
//
// Matching is case-insensitive. Build must be called after the last
// AddPattern and before the first Search.
type AhoCorasick struct {
	mu       sync.RWMutex
	root     *acNode
	patterns []Pattern
	built    bool
}

// acNode is a node in the Aho-Corasick automaton.
type acNode struct {
	children map[rune]*acNode
	failure  *acNode
	output   []int // indices of patterns ending at this node
}

// Pattern is a search pattern with optional associated data.
type Pattern struct {
	Text string
	Data any // e.g. signature category or severity
}

// Match is one pattern occurrence in the searched text.
type Match struct {
	Pattern  string
	Data     any
	Position int // start offset in the lowercased text
}

// NewAhoCorasick creates an empty automaton.
func NewAhoCorasick() *AhoCorasick {
	return &AhoCorasick{root: newACNode()}
}

func newACNode() *acNode {
	return &acNode{children: make(map[rune]*acNode)}
}

// AddPattern registers a pattern with associated data. Empty patterns
// are ignored. Adding after Build marks the automaton dirty; Build must
// be called again.
func (ac *AhoCorasick) AddPattern(text string, data any) {
	if text == "" {
		return
	}
	ac.mu.Lock()
	defer ac.mu.Unlock()

	ac.patterns = append(ac.patterns, Pattern{Text: text, Data: data})
	ac.built = false
}

// AddPatterns registers several patterns sharing the same data.
func (ac *AhoCorasick) AddPatterns(texts []string, data any) {
	for _, t := range texts {
		ac.AddPattern(t, data)
	}
}

// Build constructs the trie and failure links. Must be called before Search.
func (ac *AhoCorasick) Build() {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	ac.root = newACNode()

	// Trie construction
	for i, p := range ac.patterns {
		node := ac.root
		for _, r := range strings.ToLower(p.Text) {
			child, ok := node.children[r]
			if !ok {
				child = newACNode()
				node.children[r] = child
			}
			node = child
		}
		node.output = append(node.output, i)
	}

	// Failure links via BFS
	queue := make([]*acNode, 0, len(ac.root.children))
	for _, child := range ac.root.children {
		child.failure = ac.root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for r, child := range node.children {
			queue = append(queue, child)

			fail := node.failure
			for fail != nil {
				if next, ok := fail.children[r]; ok {
					child.failure = next
					break
				}
				fail = fail.failure
			}
			if child.failure == nil {
				child.failure = ac.root
			}
			child.output = append(child.output, child.failure.output...)
		}
	}

	ac.built = true
}

// Search returns all pattern matches in the text. Returns nil when the
// automaton has not been built or the text matches nothing.
func (ac *AhoCorasick) Search(text string) []Match {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	if !ac.built {
		return nil
	}

	var matches []Match
	node := ac.root
	lowered := strings.ToLower(text)

	for pos, r := range lowered {
		for node != ac.root && node.children[r] == nil {
			node = node.failure
		}
		if next, ok := node.children[r]; ok {
			node = next
		}

		for _, idx := range node.output {
			p := ac.patterns[idx]
			matches = append(matches, Match{
				Pattern:  p.Text,
				Data:     p.Data,
				Position: pos - len(p.Text) + 1,
			})
		}
	}

	return matches
}

// MatchesAny reports whether the text contains at least one pattern.
// Cheaper than Search when only the boolean answer matters.
func (ac *AhoCorasick) MatchesAny(text string) bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	if !ac.built {
		return false
	}

	node := ac.root
	for _, r := range strings.ToLower(text) {
		for node != ac.root && node.children[r] == nil {
			node = node.failure
		}
		if next, ok := node.children[r]; ok {
			node = next
		}
		if len(node.output) > 0 {
			return true
		}
	}
	return false
}

// PatternCount returns the number of registered patterns.
func (ac *AhoCorasick) PatternCount() int {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return len(ac.patterns)
}
