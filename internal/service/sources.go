package service

import (
	"fmt"
	"strings"

	"ragchat/internal/model/chat"
	"ragchat/internal/pkg/knowledge"
)

const sourcesHeading = "\n\n### Sources\n\n"

// BuildSources 由上下文文档生成来源列表，同名同地址的文档只保留分数最高的一篇
func BuildSources(docs []knowledge.Document) []chat.Source {
	sources := make([]chat.Source, 0, len(docs))
	index := make(map[string]int, len(docs))
	for _, doc := range docs {
		src := chat.Source{
			Name:     doc.Name(),
			Location: doc.Location(),
			Snippet:  doc.Snippet(),
		}
		if doc.HasScore {
			src.Score = doc.Score
		}

		key := src.Name + "\x00" + src.Location
		if i, ok := index[key]; ok {
			if src.Score > sources[i].Score {
				sources[i] = src
			}
			continue
		}
		index[key] = len(sources)
		sources = append(sources, src)
	}
	return sources
}

// FormatSources 渲染追加在回答末尾的 Markdown 来源段落，没有来源时返回空串
func FormatSources(sources []chat.Source) string {
	if len(sources) == 0 {
		return ""
	}

	entries := make([]string, 0, len(sources))
	for i, src := range sources {
		var b strings.Builder
		fmt.Fprintf(&b, "%d. ", i+1)
		if src.Location != "" {
			fmt.Fprintf(&b, "**[%s](%s)**", src.Name, src.Location)
		} else {
			fmt.Fprintf(&b, "**%s**", src.Name)
		}
		if src.Score > 0 {
			fmt.Fprintf(&b, " (%d%%)", int(src.Score*100))
		}
		if src.Snippet != "" {
			b.WriteString("\n   > ")
			b.WriteString(strings.ReplaceAll(src.Snippet, "\n", "\n   > "))
		}
		entries = append(entries, b.String())
	}
	return sourcesHeading + strings.Join(entries, "\n\n")
}
