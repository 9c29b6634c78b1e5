package model

type ResourceKind string

const (
	ResourceVideo ResourceKind = "video"
	ResourcePDF   ResourceKind = "pdf"
	ResourceLink  ResourceKind = "link"
)

// UnitResource 单元讲解资源（视频、PDF、外链）
type UnitResource struct {
	BaseModel
	UnitID          uint         `gorm:"index;not null" json:"unitId"`
	Title           string       `gorm:"size:200;not null" json:"title"`
	Kind            ResourceKind `gorm:"size:20;not null" json:"kind"`
	URL             string       `gorm:"size:500;not null" json:"url"`
	FileKey         string       `gorm:"size:255" json:"-"`
	ThumbnailURL    string       `gorm:"size:500" json:"thumbnailUrl,omitempty"`
	DurationSeconds int          `gorm:"default:0" json:"durationSeconds"`
	CreatorID       uint         `gorm:"index" json:"creatorId"`
	Unit            *Unit        `gorm:"foreignKey:UnitID;constraint:OnDelete:CASCADE" json:"-"`
}

func (UnitResource) TableName() string {
	return "unit_resources"
}
