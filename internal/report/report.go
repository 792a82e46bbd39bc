// Package report turns matched news into a rendered daily digest.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/liuyezhou/TrendRadar/internal/config"
	"github.com/liuyezhou/TrendRadar/internal/match"
	"github.com/liuyezhou/TrendRadar/internal/storage"
	"github.com/liuyezhou/TrendRadar/internal/timeutil"
)

type Options struct {
	// Mode is "daily", "current" or "incremental"; it only labels the
	// report, input selection happens upstream.
	Mode          string
	RankThreshold int
	// MaxPerKeyword caps items per section; a group's own @N cap wins
	// when smaller. 0 means unlimited.
	MaxPerKeyword       int
	SortByPositionFirst bool
	ReverseContentOrder bool
	Weights             config.WeightConfig
}

type Item struct {
	Title      string
	URL        string
	SourceID   string
	SourceName string
	MinRank    int64
	Count      int
	FirstSeen  string
	LastSeen   string
	IsNew      bool

	weight float64
}

type Section struct {
	Key   string
	Items []Item

	weight float64
}

type Report struct {
	Date         string
	Mode         string
	TotalMatched int
	NewCount     int
	// FailedPlatforms lists platform ids whose fetch failed this run.
	FailedPlatforms []string
	Sections        []Section
}

// Build groups matched items into sections and orders them by weight.
// newItems marks titles first seen in the latest crawl.
func Build(items, newItems []storage.NewsItem, rules match.Rules, opts Options) Report {
	newSet := make(map[string]bool, len(newItems))
	for _, it := range newItems {
		newSet[it.SourceID+"\x00"+it.Title] = true
	}

	// Section per word group, plus a catch-all when no groups exist.
	grouped := map[int][]Item{}
	total := 0
	newCount := 0
	for _, it := range items {
		idx, ok := rules.GroupFor(it.Title)
		if !ok {
			continue
		}
		total++
		ri := Item{
			Title:      it.Title,
			URL:        it.URL,
			SourceID:   it.SourceID,
			SourceName: it.SourceName,
			MinRank:    it.MinRank(),
			Count:      it.CrawlCount,
			FirstSeen:  timeutil.HourMinute(it.CreatedAt),
			LastSeen:   timeutil.HourMinute(it.UpdatedAt),
			IsNew:      newSet[it.SourceID+"\x00"+it.Title],
		}
		if ri.IsNew {
			newCount++
		}
		ri.weight = itemWeight(ri, opts)
		grouped[idx] = append(grouped[idx], ri)
	}

	var sections []Section
	for idx, sec := range grouped {
		key := "全部"
		maxCount := 0
		if idx >= 0 && idx < len(rules.Groups) {
			key = rules.Groups[idx].Key
			maxCount = rules.Groups[idx].MaxCount
		}

		items := sec
		if opts.SortByPositionFirst {
			sort.SliceStable(items, func(i, j int) bool { return lessByRank(items[i], items[j]) })
		} else {
			sort.SliceStable(items, func(i, j int) bool { return items[i].weight > items[j].weight })
		}

		limit := opts.MaxPerKeyword
		if maxCount > 0 && (limit == 0 || maxCount < limit) {
			limit = maxCount
		}
		if limit > 0 && len(items) > limit {
			items = items[:limit]
		}

		s := Section{Key: key, Items: items}
		for _, it := range items {
			s.weight += it.weight
		}
		sections = append(sections, s)
	}

	sort.SliceStable(sections, func(i, j int) bool { return sections[i].weight > sections[j].weight })
	if opts.ReverseContentOrder {
		for i, j := 0, len(sections)-1; i < j; i, j = i+1, j-1 {
			sections[i], sections[j] = sections[j], sections[i]
		}
	}

	return Report{
		Date:         timeutil.DateKey(timeutil.Now()),
		Mode:         opts.Mode,
		TotalMatched: total,
		NewCount:     newCount,
		Sections:     sections,
	}
}

// itemWeight blends rank quality, repeat frequency and hotness, each
// scaled to [0,1], using the configured weights.
func itemWeight(it Item, opts Options) float64 {
	var rankScore float64
	if it.MinRank > 0 && it.MinRank <= 10 {
		rankScore = float64(11-it.MinRank) / 10
	}

	freq := float64(it.Count)
	if freq > 10 {
		freq = 10
	}
	freqScore := freq / 10

	var hotScore float64
	threshold := opts.RankThreshold
	if threshold <= 0 {
		threshold = 5
	}
	if it.MinRank > 0 && it.MinRank <= int64(threshold) {
		hotScore = 1
	}

	w := opts.Weights
	if w.Rank == 0 && w.Frequency == 0 && w.Hotness == 0 {
		w = config.WeightConfig{Rank: 0.6, Frequency: 0.3, Hotness: 0.1}
	}
	return w.Rank*rankScore + w.Frequency*freqScore + w.Hotness*hotScore
}

func lessByRank(a, b Item) bool {
	ar, br := a.MinRank, b.MinRank
	if ar == 0 {
		ar = 1 << 30
	}
	if br == 0 {
		br = 1 << 30
	}
	if ar != br {
		return ar < br
	}
	return a.weight > b.weight
}

// GroupKeys returns the section keys in display order, for the stored
// daily summary.
func (r Report) GroupKeys() []string {
	keys := make([]string, 0, len(r.Sections))
	for _, s := range r.Sections {
		keys = append(keys, s.Key)
	}
	return keys
}

// RenderText renders the full plain-text report.
func (r Report) RenderText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 TrendRadar 热点报告 · %s · %s\n", r.Date, r.Mode)
	fmt.Fprintf(&b, "共 %d 条匹配", r.TotalMatched)
	if r.NewCount > 0 {
		fmt.Fprintf(&b, "，其中 %d 条新上榜", r.NewCount)
	}
	b.WriteString("\n")
	if len(r.FailedPlatforms) > 0 {
		fmt.Fprintf(&b, "⚠️ 抓取失败平台: %s\n", strings.Join(r.FailedPlatforms, ", "))
	}

	for _, sec := range r.Sections {
		fmt.Fprintf(&b, "\n🔥 %s (%d条)\n", sec.Key, len(sec.Items))
		for i, it := range sec.Items {
			fmt.Fprintf(&b, "%d. [%s] %s", i+1, it.SourceName, it.Title)
			if it.MinRank > 0 {
				fmt.Fprintf(&b, " (最高第%d位·%d次·%s~%s)", it.MinRank, it.Count, it.FirstSeen, it.LastSeen)
			}
			if it.IsNew {
				b.WriteString(" 🆕")
			}
			b.WriteString("\n")
			if it.URL != "" {
				fmt.Fprintf(&b, "   %s\n", it.URL)
			}
		}
	}
	return b.String()
}
