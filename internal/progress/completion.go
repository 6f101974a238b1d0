package progress

// IdentifyCompletedCurriculums returns the curricula whose every assigned
// task has at least one attempt with positive dXP. A curriculum with no
// tasks is never complete.
func IdentifyCompletedCurriculums(attempts []AttemptRecord, tree AssignmentTree) Set {
	mastered := make(Set)
	for _, a := range attempts {
		if a.DXP > 0 {
			mastered.Add(a.QuestionID)
		}
	}

	completed := make(Set)
	for _, curriculumID := range tree.Curricula() {
		tasks, _ := tree.Tasks(curriculumID)
		if len(tasks) == 0 {
			continue
		}
		done := true
		for _, task := range tasks {
			if !mastered.Has(task.TaskKey) {
				done = false
				break
			}
		}
		if done {
			completed.Add(curriculumID)
		}
	}
	return completed
}
