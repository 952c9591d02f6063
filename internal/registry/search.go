package registry

import (
	"context"
	"sort"
	"strings"
)

// Search scoring constants - higher scores rank first
const (
	scoreExactToolName   = 1000 // query exactly matches tool name
	scoreServerMatch     = 800  // query matches the server id
	scoreToolNamePrefix  = 300  // tool name starts with query
	scoreAllTermsInName  = 200  // all query terms found in tool name
	scoreAllTermsCrossed = 150  // all terms found across server id + tool name
	scoreAllTermsInDesc  = 100  // all query terms found in description
	scorePartialTermName = 50   // per term found in tool name
	scorePartialTermDesc = 25   // per term found in description
	scoreFuzzyMatch      = 10   // fuzzy normalized match (fallback)
)

// normalize converts a string to lowercase and strips separators
// (underscores, hyphens, spaces) to enable fuzzy matching.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// tokenize splits a string into lowercase terms on common separators.
func tokenize(s string) []string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, ".", " ")
	return strings.Fields(s)
}

func containsAllTerms(text string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(text, term) {
			return false
		}
	}
	return true
}

func countMatchingTerms(text string, terms []string) int {
	count := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			count++
		}
	}
	return count
}

type scoredDescriptor struct {
	tool  ToolDescriptor
	score int
}

// SearchTools ranks the override-merged tools of every connected server
// against a query. serverFilter optionally restricts results to one
// server (full key or bare server id resolved via Resolve). An empty
// query returns everything, unranked.
func (r *Registry) SearchTools(ctx context.Context, query, serverFilter string) ([]ToolDescriptor, error) {
	var keys []ServerKey
	if serverFilter != "" {
		key, err := r.Resolve(serverFilter)
		if err != nil {
			return nil, err
		}
		keys = []ServerKey{key}
	} else {
		r.mu.RLock()
		for key := range r.servers {
			keys = append(keys, key)
		}
		r.mu.RUnlock()
	}

	if query == "" {
		var results []ToolDescriptor
		for _, key := range keys {
			tools, err := r.ServerTools(ctx, key)
			if err != nil {
				return nil, err
			}
			results = append(results, tools...)
		}
		sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
		return results, nil
	}

	queryLower := strings.ToLower(query)
	queryNorm := normalize(query)
	queryTerms := tokenize(query)

	var scored []scoredDescriptor
	for _, key := range keys {
		tools, err := r.ServerTools(ctx, key)
		if err != nil {
			return nil, err
		}
		serverLower := strings.ToLower(key.Server)
		serverNorm := normalize(key.Server)
		for _, tool := range tools {
			score := scoreTool(tool, serverLower, serverNorm, queryLower, queryNorm, queryTerms)
			if score > 0 {
				scored = append(scored, scoredDescriptor{tool: tool, score: score})
			}
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].tool.ID < scored[j].tool.ID
	})

	results := make([]ToolDescriptor, len(scored))
	for i, s := range scored {
		results[i] = s.tool
	}
	return results, nil
}

// scoreTool calculates the relevance score for a tool given a query.
// Returns 0 when the tool does not match at all.
func scoreTool(tool ToolDescriptor, serverLower, serverNorm, queryLower, queryNorm string, queryTerms []string) int {
	nameLower := strings.ToLower(tool.RawName)
	descLower := strings.ToLower(tool.Description)
	nameNorm := normalize(tool.RawName)
	descNorm := normalize(tool.Description)

	score := 0

	if nameLower == queryLower || nameNorm == queryNorm {
		score += scoreExactToolName
	}
	if serverLower == queryLower || serverNorm == queryNorm {
		score += scoreServerMatch
	}
	if strings.HasPrefix(nameLower, queryLower) || strings.HasPrefix(nameNorm, queryNorm) {
		score += scoreToolNamePrefix
	}

	if len(queryTerms) > 0 {
		if containsAllTerms(nameLower, queryTerms) {
			score += scoreAllTermsInName
		}
		if containsAllTerms(serverLower+" "+nameLower, queryTerms) {
			score += scoreAllTermsCrossed
		}
		if containsAllTerms(descLower, queryTerms) {
			score += scoreAllTermsInDesc
		}
		score += countMatchingTerms(nameLower, queryTerms) * scorePartialTermName
		score += countMatchingTerms(descLower, queryTerms) * scorePartialTermDesc
	}

	if score == 0 {
		if strings.Contains(nameLower, queryLower) ||
			strings.Contains(descLower, queryLower) ||
			strings.Contains(nameNorm, queryNorm) ||
			strings.Contains(descNorm, queryNorm) {
			score += scoreFuzzyMatch
		}
	}

	return score
}
