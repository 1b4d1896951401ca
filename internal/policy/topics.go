package policy

import "strings"

type category struct {
	name     string
	keywords []string
}

var categories = []category{
	{"crypto", []string{"crypto", "defi", "wallet", "ethereum", "bitcoin", "token", "web3"}},
	{"sports", []string{"sport", "football", "soccer", "nba", "nfl", "cricket", "fitness"}},
	{"gaming", []string{"game", "gaming", "esports", "rpg", "fps", "steam"}},
	{"books", []string{"book", "novel", "reading", "literature", "author"}},
	{"science", []string{"science", "physics", "chemistry", "biology", "space", "research"}},
	{"programming", []string{"code", "programming", "typescript", "javascript", "python", "rust", "api"}},
}

// InferTopics returns every keyword category whose terms occur in the
// question text, in a fixed order. Text with no match maps to GeneralTopic.
func InferTopics(header, content string) []string {
	text := strings.ToLower(header + "\n" + content)

	var topics []string
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(text, kw) {
				topics = append(topics, c.name)
				break
			}
		}
	}

	if len(topics) == 0 {
		return []string{GeneralTopic}
	}
	return topics
}
