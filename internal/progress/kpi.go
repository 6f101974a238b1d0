package progress

// Score is one KPI bucket.
type Score struct {
	TotalEarned   float64 `json:"totalEarned"`
	ScoreEarned   float64 `json:"scoreEarned"`
	TotalPossible float64 `json:"totalPossible"`
	Percent       float64 `json:"percent"`
}

func (s *Score) add(dxp float64) {
	s.TotalEarned += dxp
	if dxp > 0 {
		s.ScoreEarned += dxp
	}
}

func (s *Score) finish() {
	s.Percent = Percent(s.ScoreEarned, s.TotalPossible)
}

// Percent returns earned/possible as a percentage in [0, 100].
// A non-positive possible yields 0.
func Percent(earned, possible float64) float64 {
	if possible <= 0 {
		return 0
	}
	p := earned / possible * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// KPISummary is the hierarchical performance summary of one learner.
type KPISummary struct {
	Overall           Score                        `json:"overall"`
	Content           map[string]*Score            `json:"content"`
	Curriculum        map[string]*Score            `json:"curriculum"`
	StandardObjective map[string]map[string]*Score `json:"standardObjective"`
}

// CalculateKPIs folds attempts into per-content, per-curriculum and
// per-objective buckets. Possible XP comes from the tree only, so buckets
// for content missing from the tree keep a zero possible and zero percent.
func CalculateKPIs(attempts []AttemptRecord, tree AssignmentTree) KPISummary {
	possible := ComputePossibleXP(tree)

	sum := KPISummary{
		Content:           make(map[string]*Score),
		Curriculum:        make(map[string]*Score),
		StandardObjective: make(map[string]map[string]*Score),
	}

	for _, a := range attempts {
		sum.Overall.add(a.DXP)
		bucket(sum.Content, a.ContentID).add(a.DXP)
		bucket(sum.Curriculum, a.CurriculumID).add(a.DXP)

		objectives, ok := sum.StandardObjective[a.ContentID]
		if !ok {
			objectives = make(map[string]*Score)
			sum.StandardObjective[a.ContentID] = objectives
		}
		bucket(objectives, a.ObjectiveKey()).add(a.DXP)
	}

	sum.Overall.TotalPossible = possible.Overall
	for id, xp := range possible.Content {
		bucket(sum.Content, id).TotalPossible = xp
	}
	for id, xp := range possible.Curriculum {
		bucket(sum.Curriculum, id).TotalPossible = xp
	}
	for contentID, objectives := range possible.StandardObjective {
		dst, ok := sum.StandardObjective[contentID]
		if !ok {
			dst = make(map[string]*Score)
			sum.StandardObjective[contentID] = dst
		}
		for key, xp := range objectives {
			bucket(dst, key).TotalPossible = xp
		}
	}

	sum.Overall.finish()
	for _, s := range sum.Content {
		s.finish()
	}
	for _, s := range sum.Curriculum {
		s.finish()
	}
	for _, objectives := range sum.StandardObjective {
		for _, s := range objectives {
			s.finish()
		}
	}
	return sum
}

func bucket(m map[string]*Score, key string) *Score {
	s, ok := m[key]
	if !ok {
		s = &Score{}
		m[key] = s
	}
	return s
}

// PossibleXP holds the XP ceilings derived from an assignment tree.
type PossibleXP struct {
	Curriculum        map[string]float64            `json:"curriculumXP"`
	Content           map[string]float64            `json:"contentXP"`
	StandardObjective map[string]map[string]float64 `json:"standardObjectiveXP"`
	Overall           float64                       `json:"overallXP"`
}

// ComputePossibleXP sums difficulty/3 per curriculum and per objective. A
// content's possible XP is the sum over its curricula; the overall figure
// counts each distinct curriculum once even if several contents list it.
func ComputePossibleXP(tree AssignmentTree) PossibleXP {
	p := PossibleXP{
		Curriculum:        make(map[string]float64),
		Content:           make(map[string]float64),
		StandardObjective: make(map[string]map[string]float64),
	}

	for contentID, curricula := range tree {
		objectives := make(map[string]float64)
		for _, tasks := range curricula {
			for _, task := range tasks {
				objectives[task.ObjectiveKey()] += task.PossibleXP()
			}
		}
		p.StandardObjective[contentID] = objectives
	}

	// A curriculum listed under several contents is one assignment; the
	// first content in key order supplies its task list.
	difficulty := make(map[string]float64)
	for _, contentID := range sortedKeys(tree) {
		for curriculumID, tasks := range tree[contentID] {
			if _, ok := difficulty[curriculumID]; ok {
				continue
			}
			var d float64
			for _, task := range tasks {
				d += task.Difficulty.Float()
			}
			difficulty[curriculumID] = d
		}
	}

	for curriculumID, d := range difficulty {
		p.Curriculum[curriculumID] = d / 3
		p.Overall += d / 3
	}
	for contentID, curricula := range tree {
		for curriculumID := range curricula {
			p.Content[contentID] += p.Curriculum[curriculumID]
		}
	}
	return p
}
