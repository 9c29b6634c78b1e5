package model

import "time"

// AccuracyStat 按主题轴 / 单元聚合的正确率
type AccuracyStat struct {
	ID       uint    `json:"id"`
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Attempts int     `json:"attempts"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"` // 0-100
}

// WeeklyActivity 周练习量
type WeeklyActivity struct {
	Week     string  `json:"week"`
	Attempts int     `json:"attempts"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// EnsayoHistoryItem 学生参加过的模拟考
type EnsayoHistoryItem struct {
	SessionID    uint       `json:"sessionId"`
	Title        string     `json:"title"`
	Level        TestLevel  `json:"level"`
	ScheduledAt  time.Time  `json:"scheduledAt"`
	Score        int        `json:"score"`
	CorrectCount int        `json:"correctCount"`
	TotalCount   int        `json:"totalCount"`
	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
}

// StudentOverview 学生学习概览
type StudentOverview struct {
	TotalAttempts    int                     `json:"totalAttempts"`
	CorrectAttempts  int                     `json:"correctAttempts"`
	Accuracy         float64                 `json:"accuracy"`
	ByAxis           []AccuracyStat          `json:"byAxis"`
	ByUnit           []AccuracyStat          `json:"byUnit"`
	Weekly           []WeeklyActivity        `json:"weekly"`
	Ensayos          []EnsayoHistoryItem     `json:"ensayos"`
	AverageEnsayo    float64                 `json:"averageEnsayo"`
	KnowledgeSummary map[KnowledgeStatus]int `json:"knowledgeSummary"`
}

// QuestionStat 场次内单题正确率
type QuestionStat struct {
	QuestionID  uint    `json:"questionId"`
	Position    int     `json:"position"`
	Answered    int     `json:"answered"`
	Correct     int     `json:"correct"`
	CorrectRate float64 `json:"correctRate"`
}

// SessionStats 教师查看的场次统计
type SessionStats struct {
	SessionID     uint           `json:"sessionId"`
	Registrations int            `json:"registrations"`
	Participants  int            `json:"participants"`
	Submissions   int            `json:"submissions"`
	AverageScore  float64        `json:"averageScore"`
	MaxScore      int            `json:"maxScore"`
	Questions     []QuestionStat `json:"questions"`
}

// SessionResultRow 场次排行榜单行
type SessionResultRow struct {
	Rank         int        `json:"rank"`
	UserID       uint       `json:"userId"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Score        int        `json:"score"`
	CorrectCount int        `json:"correctCount"`
	TotalCount   int        `json:"totalCount"`
	JoinedAt     time.Time  `json:"joinedAt"`
	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
}

// PlatformOverview 管理员平台概览
type PlatformOverview struct {
	UsersByRole        map[UserRole]int      `json:"usersByRole"`
	ActiveUsers7d      int                   `json:"activeUsers7d"`
	DemoAccounts       int                   `json:"demoAccounts"`
	Questions          int                   `json:"questions"`
	PublishedQuestions int                   `json:"publishedQuestions"`
	SessionsByStatus   map[SessionStatus]int `json:"sessionsByStatus"`
	Diagnostics        int                   `json:"diagnostics"`
	TutorChats         int                   `json:"tutorChats"`
	Certificates       int                   `json:"certificates"`
}
