package model

// ThematicAxis PAES 数学的主题轴（数、代数与函数、几何、概率与统计）
type ThematicAxis struct {
	BaseModel
	Code  string `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name  string `gorm:"size:150;not null" json:"name"`
	Order int    `gorm:"column:sort_order;default:0" json:"order"`
	Units []Unit `gorm:"foreignKey:AxisID;constraint:OnDelete:CASCADE" json:"units,omitempty"`
}

func (ThematicAxis) TableName() string {
	return "thematic_axes"
}

// Unit 主题轴下的单元，区分 M1 / M2
type Unit struct {
	BaseModel
	AxisID      uint      `gorm:"index;not null" json:"axisId"`
	Level       TestLevel `gorm:"size:4;not null;index" json:"level"`
	Code        string    `gorm:"size:80;uniqueIndex;not null" json:"code"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Order       int       `gorm:"column:sort_order;default:0" json:"order"`
	Topics      []Topic   `gorm:"foreignKey:UnitID;constraint:OnDelete:CASCADE" json:"topics,omitempty"`
}

func (Unit) TableName() string {
	return "units"
}

type Topic struct {
	BaseModel
	UnitID uint   `gorm:"index;not null" json:"unitId"`
	Code   string `gorm:"size:80;not null" json:"code"`
	Name   string `gorm:"size:200;not null" json:"name"`
	Order  int    `gorm:"column:sort_order;default:0" json:"order"`
}

func (Topic) TableName() string {
	return "topics"
}
