package service

import (
	"fmt"
	"math"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/util"
	"regexp"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
)

// numericTolerance 数值题判定的绝对误差
const numericTolerance = 1e-6

// 逗号作为小数点（如 "0,75"），千位分隔的写法不支持
var decimalComma = regexp.MustCompile(`(\d),(\d)`)

// CheckAnswer 按题型判定作答是否正确
func CheckAnswer(q *model.Question, answer string) bool {
	switch q.Type {
	case model.QuestionNumeric:
		return numericEqual(q.CorrectAnswer, answer)
	default:
		return normalizeKey(q.CorrectAnswer) != "" && normalizeKey(q.CorrectAnswer) == normalizeKey(answer)
	}
}

func normalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func numericEqual(expected, actual string) bool {
	want, err := EvaluateNumeric(expected)
	if err != nil {
		return false
	}
	got, err := EvaluateNumeric(actual)
	if err != nil {
		return false
	}
	return math.Abs(want-got) <= numericTolerance
}

// EvaluateNumeric 计算 "3/4"、"2^3"、"0,75"、"1.5e2" 这类算术表达式的值
func EvaluateNumeric(expr string) (float64, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return 0, fmt.Errorf("empty expression")
	}
	s = decimalComma.ReplaceAllString(s, "$1.$2")
	s = strings.ReplaceAll(s, "^", "**")
	s = strings.ReplaceAll(s, "×", "*")
	s = strings.ReplaceAll(s, "÷", "/")

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("expression is not a finite number: %s", expr)
		}
		return v, nil
	}

	parsed, err := govaluate.NewEvaluableExpression(s)
	if err != nil {
		return 0, err
	}
	if len(parsed.Vars()) > 0 {
		return 0, fmt.Errorf("expression contains variables: %s", expr)
	}
	result, err := parsed.Evaluate(nil)
	if err != nil {
		return 0, err
	}
	v, ok := result.(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("expression is not a finite number: %s", expr)
	}
	return v, nil
}

// ValidateQuestion 选择题答案必须是选项之一，数值题答案必须可计算
func ValidateQuestion(q *model.Question) error {
	if strings.TrimSpace(q.Stem) == "" {
		return fmt.Errorf("stem is required")
	}
	if !q.Level.Valid() {
		return fmt.Errorf("level must be M1 or M2")
	}
	if q.Difficulty < 1 || q.Difficulty > 3 {
		return fmt.Errorf("difficulty must be between 1 and 3")
	}
	switch q.Type {
	case model.QuestionMultipleChoice:
		opts := q.ParsedOptions()
		if len(opts) < 2 {
			return fmt.Errorf("multiple choice questions need at least two options")
		}
		seen := make(map[string]bool, len(opts))
		for _, o := range opts {
			k := normalizeKey(o.Key)
			if k == "" || seen[k] {
				return fmt.Errorf("option keys must be unique and non-empty")
			}
			seen[k] = true
		}
		if !seen[normalizeKey(q.CorrectAnswer)] {
			return fmt.Errorf("correct answer %q is not one of the option keys", q.CorrectAnswer)
		}
	case model.QuestionNumeric:
		if _, err := EvaluateNumeric(q.CorrectAnswer); err != nil {
			return fmt.Errorf("correct answer is not numeric: %v", err)
		}
	default:
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	return nil
}

// PAESScore 把正确率换算为 100-1000 的 PAES 分数
func PAESScore(correct, total int) int {
	if total <= 0 {
		return util.PAESMinScore
	}
	span := float64(util.PAESMaxScore - util.PAESMinScore)
	return int(math.Round(util.PAESMinScore + span*float64(correct)/float64(total)))
}
