package pose

// Scene names the tutorial screens the navigator moves between.
type Scene string

const (
	SceneStart         Scene = "start"
	SceneTrainingHub   Scene = "trainingHub"
	ScenePassLearn     Scene = "passLearn"
	ScenePassPractice  Scene = "passPractice"
	SceneSpikeLearn    Scene = "spikeLearn"
	SceneSpikePractice Scene = "spikePractice"
	SceneBlockLearn    Scene = "blockLearn"
	SceneBlockPractice Scene = "blockPractice"
	SceneTransition    Scene = "transition"
	SceneMatch         Scene = "match"
)

// Scenes lists every scene in tutorial order.
var Scenes = []Scene{
	SceneStart, SceneTrainingHub,
	ScenePassLearn, ScenePassPractice,
	SceneSpikeLearn, SceneSpikePractice,
	SceneBlockLearn, SceneBlockPractice,
	SceneTransition, SceneMatch,
}

// ParseScene validates a scene name. Scene names are case sensitive.
func ParseScene(s string) (Scene, error) {
	for _, sc := range Scenes {
		if string(sc) == s {
			return sc, nil
		}
	}
	return "", ErrUnknownScene
}

// Entry is the per-pose configuration row used by both controllers.
type Entry struct {
	Pose  Pose
	Label string

	// Requires names the pose that must be completed first; empty for pass.
	Requires Pose

	ReadyText   string
	FinalCall   string
	Tip         string
	SuccessText string
	MatchHint   string

	LearnScene    Scene
	PracticeScene Scene
	NextScene     Scene
}

var catalog = map[Pose]Entry{
	Pass: {
		Pose:          Pass,
		Label:         "pass",
		ReadyText:     "Get into your passing position...",
		FinalCall:     "Stay low, keep your arms still!",
		Tip:           "Not quite there yet. Try to lower yourself a little more and stretch your arms better.",
		SuccessText:   "Well done! Your passing position is already good. Ready for the next one?",
		MatchHint:     "Stay low",
		LearnScene:    ScenePassLearn,
		PracticeScene: ScenePassPractice,
		NextScene:     SceneSpikeLearn,
	},
	Spike: {
		Pose:          Spike,
		Label:         "spike",
		Requires:      Pass,
		ReadyText:     "Prepare your jump...",
		FinalCall:     "Stretch your arm out completely!",
		Tip:           "Almost! Try to raise your arm a little higher and open your upper body more.",
		SuccessText:   "Yes! Nice spike position. Your attack is ready. Time to build the wall.",
		MatchHint:     "Stretch your arm",
		LearnScene:    SceneSpikeLearn,
		PracticeScene: SceneSpikePractice,
		NextScene:     SceneBlockLearn,
	},
	Block: {
		Pose:          Block,
		Label:         "block",
		Requires:      Spike,
		ReadyText:     "Get ready...",
		Tip:           "Not quite. Make sure both arms are at the same height and not too far back.",
		SuccessText:   "Strong block! You are ready for the match.",
		MatchHint:     "Wall up",
		LearnScene:    SceneBlockLearn,
		PracticeScene: SceneBlockPractice,
		NextScene:     SceneMatch,
	},
}

// ForScene returns the pose a learn or practice scene belongs to.
func ForScene(s Scene) (p Pose, practice bool, ok bool) {
	for _, e := range catalog {
		switch s {
		case e.LearnScene:
			return e.Pose, false, true
		case e.PracticeScene:
			return e.Pose, true, true
		}
	}
	return "", false, false
}
