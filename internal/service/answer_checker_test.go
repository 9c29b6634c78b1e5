package service

import (
	"encoding/json"
	"testing"

	"paes_math_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mcQuestion(correct string) *model.Question {
	opts, _ := json.Marshal([]model.QuestionOption{{Key: "A", Text: "1"}, {Key: "B", Text: "2"}, {Key: "C", Text: "3"}})
	return &model.Question{Level: model.LevelM1, Type: model.QuestionMultipleChoice, Stem: "¿Cuánto es 1+1?", Options: opts, CorrectAnswer: correct, Difficulty: 1}
}

func TestCheckAnswerMultipleChoice(t *testing.T) {
	q := mcQuestion("B")
	assert.True(t, CheckAnswer(q, "B"))
	assert.True(t, CheckAnswer(q, " b "))
	assert.False(t, CheckAnswer(q, "A"))
	assert.False(t, CheckAnswer(q, ""))
}

func TestCheckAnswerNumeric(t *testing.T) {
	q := &model.Question{Type: model.QuestionNumeric, CorrectAnswer: "0.75"}
	for _, answer := range []string{"0.75", "3/4", "0,75", " 6/8 ", "75/100"} {
		assert.True(t, CheckAnswer(q, answer), answer)
	}
	assert.False(t, CheckAnswer(q, "0.7"))
	assert.False(t, CheckAnswer(q, "x/4"))
	assert.False(t, CheckAnswer(q, "tres cuartos"))

	pow := &model.Question{Type: model.QuestionNumeric, CorrectAnswer: "2^3"}
	assert.True(t, CheckAnswer(pow, "8"))
}

func TestCheckAnswerNumericAbsoluteTolerance(t *testing.T) {
	big := &model.Question{Type: model.QuestionNumeric, CorrectAnswer: "1000000"}
	assert.True(t, CheckAnswer(big, "1000000"))
	assert.True(t, CheckAnswer(big, "2000000/2"))
	assert.False(t, CheckAnswer(big, "1000000.9"))
	assert.False(t, CheckAnswer(big, "1000001"))

	thousand := &model.Question{Type: model.QuestionNumeric, CorrectAnswer: "1000"}
	assert.False(t, CheckAnswer(thousand, "1000.0009"))
	assert.True(t, CheckAnswer(thousand, "1000.0000001"))

	sum := &model.Question{Type: model.QuestionNumeric, CorrectAnswer: "0.3"}
	assert.True(t, CheckAnswer(sum, "0.1+0.2"))
}

func TestEvaluateNumeric(t *testing.T) {
	v, err := EvaluateNumeric("(1+2)*3")
	require.NoError(t, err)
	assert.Equal(t, 9.0, v)

	_, err = EvaluateNumeric("1/0")
	assert.Error(t, err)

	_, err = EvaluateNumeric("")
	assert.Error(t, err)
}

func TestValidateQuestion(t *testing.T) {
	assert.NoError(t, ValidateQuestion(mcQuestion("C")))
	assert.Error(t, ValidateQuestion(mcQuestion("E")))

	numeric := &model.Question{Level: model.LevelM2, Type: model.QuestionNumeric, Stem: "log2(8)", CorrectAnswer: "3", Difficulty: 2}
	assert.NoError(t, ValidateQuestion(numeric))
	numeric.CorrectAnswer = "tres"
	assert.Error(t, ValidateQuestion(numeric))

	bad := mcQuestion("A")
	bad.Difficulty = 5
	assert.Error(t, ValidateQuestion(bad))
}

func TestPAESScore(t *testing.T) {
	assert.Equal(t, 100, PAESScore(0, 10))
	assert.Equal(t, 1000, PAESScore(10, 10))
	assert.Equal(t, 550, PAESScore(1, 2))
	assert.Equal(t, 400, PAESScore(1, 3))
	assert.Equal(t, 100, PAESScore(0, 0))
}
