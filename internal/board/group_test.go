package board

import (
	"reflect"
	"testing"

	"github.com/alfredjeanlab/dealboard/internal/model"
)

func testStages() []*model.Stage {
	return []*model.Stage{
		{ID: 10, Name: "Lead", Position: 0, Active: true},
		{ID: 11, Name: "Negotiation", Position: 1, Active: true},
		{ID: 12, Name: "Closed", Position: 2, Active: true},
		{ID: 13, Name: "Legacy", Position: 3, Active: false},
	}
}

func testDeals() []*model.Deal {
	return []*model.Deal{
		{ID: 1, Name: "Acme", Contact: "Wile E.", Email: "wile@acme.test", Industry: "Manufacturing", Stage: "Lead"},
		{ID: 2, Name: "Globex", Contact: "Hank Scorpio", Email: "hank@globex.test", Industry: "Energy", Stage: "Negotiation"},
		{ID: 3, Name: "Initech", Contact: "Bill L.", Email: "bill@initech.test", Industry: "Software", Stage: "Lead"},
		{ID: 4, Name: "Umbrella", Contact: "Albert W.", Email: "aw@umbrella.test", Industry: "Pharma", Stage: "Legacy"},
		{ID: 5, Name: "Hooli", Contact: "Gavin B.", Email: "gavin@hooli.test", Industry: "Software", Stage: "Archived"},
	}
}

func dealIDs(deals []*model.Deal) []int64 {
	ids := make([]int64, 0, len(deals))
	for _, d := range deals {
		ids = append(ids, d.ID)
	}
	return ids
}

func TestGroup_ColumnOrderAndEmptyColumns(t *testing.T) {
	g := Group(testDeals(), testStages())

	var names []string
	for _, c := range g.Columns {
		names = append(names, c.Stage.Name)
	}
	if want := []string{"Lead", "Negotiation", "Closed"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("columns = %v, want %v", names, want)
	}

	closed := g.Column("Closed")
	if closed == nil {
		t.Fatal("Closed column missing")
	}
	if closed.Deals == nil || len(closed.Deals) != 0 {
		t.Errorf("Closed column = %v, want empty non-nil slice", closed.Deals)
	}
	if g.Column("Legacy") != nil {
		t.Error("inactive stage should not produce a column")
	}
}

func TestGroup_PreservesInputOrderWithinColumn(t *testing.T) {
	g := Group(testDeals(), testStages())
	if got := dealIDs(g.Column("Lead").Deals); !reflect.DeepEqual(got, []int64{1, 3}) {
		t.Errorf("Lead deals = %v, want [1 3]", got)
	}
}

func TestGroup_OrphansAccountedFor(t *testing.T) {
	g := Group(testDeals(), testStages())
	if got := dealIDs(g.Orphans); !reflect.DeepEqual(got, []int64{4, 5}) {
		t.Errorf("orphans = %v, want [4 5]", got)
	}
	for _, c := range g.Columns {
		for _, d := range c.Deals {
			if d.ID == 4 || d.ID == 5 {
				t.Errorf("orphan deal %d rendered in column %q", d.ID, c.Stage.Name)
			}
		}
	}
}

func TestGroup_Completeness(t *testing.T) {
	for _, tc := range []struct {
		name   string
		deals  []*model.Deal
		stages []*model.Stage
	}{
		{"Mixed", testDeals(), testStages()},
		{"NoDeals", nil, testStages()},
		{"NoStages", testDeals(), nil},
		{"AllOrphans", testDeals()[3:], testStages()[:1]},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := Group(tc.deals, tc.stages)

			active := make(map[string]bool)
			for _, s := range model.ActiveStages(tc.stages) {
				active[s.Name] = true
			}
			matched := 0
			for _, d := range tc.deals {
				if active[d.Stage] {
					matched++
				}
			}

			seen := make(map[int64]int)
			inColumns := 0
			for _, c := range g.Columns {
				for _, d := range c.Deals {
					seen[d.ID]++
					inColumns++
				}
			}
			if inColumns != matched {
				t.Errorf("deals in columns = %d, want %d", inColumns, matched)
			}
			for id, n := range seen {
				if n != 1 {
					t.Errorf("deal %d appears %d times", id, n)
				}
			}
			if g.Total() != len(tc.deals) {
				t.Errorf("Total() = %d, want %d", g.Total(), len(tc.deals))
			}
		})
	}
}

func TestGroup_Pure(t *testing.T) {
	deals, stages := testDeals(), testStages()
	first := Group(deals, stages)
	second := Group(deals, stages)
	if !reflect.DeepEqual(first, second) {
		t.Error("grouping twice with the same inputs produced different output")
	}
	if !reflect.DeepEqual(deals, testDeals()) {
		t.Error("Group mutated its deal input")
	}
	if !reflect.DeepEqual(stages, testStages()) {
		t.Error("Group mutated its stage input")
	}
}

func TestGrouping_ByStage(t *testing.T) {
	g := Group(testDeals(), testStages())
	m := g.ByStage()
	if len(m) != 3 {
		t.Fatalf("ByStage has %d keys, want 3", len(m))
	}
	if got := dealIDs(m["Negotiation"]); !reflect.DeepEqual(got, []int64{2}) {
		t.Errorf("Negotiation = %v", got)
	}
}

func TestFilterDeals(t *testing.T) {
	deals := testDeals()
	for _, tc := range []struct {
		query string
		want  []int64
	}{
		{"", []int64{1, 2, 3, 4, 5}},
		{"   ", []int64{1, 2, 3, 4, 5}},
		{"acme", []int64{1}},
		{"SOFTWARE", []int64{3, 5}},
		{"hank", []int64{2}},
		{"@umbrella", []int64{4}},
		{"nomatch", []int64{}},
	} {
		t.Run(tc.query, func(t *testing.T) {
			got := dealIDs(FilterDeals(deals, tc.query))
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("FilterDeals(%q) = %v, want %v", tc.query, got, tc.want)
			}
		})
	}
	if !reflect.DeepEqual(deals, testDeals()) {
		t.Error("FilterDeals mutated its input")
	}
}
