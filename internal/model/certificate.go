package model

import "time"

type CertificateKind string

const (
	CertificateEnsayo     CertificateKind = "ensayo"
	CertificateDiagnostic CertificateKind = "diagnostic"
)

// Certificate 证书，(user_id, kind, source_ref) 唯一，保证同一来源只发一次
type Certificate struct {
	BaseModel
	Code      string          `gorm:"size:36;uniqueIndex;not null" json:"code"`
	UserID    uint            `gorm:"uniqueIndex:idx_certificate_source;not null" json:"userId"`
	Kind      CertificateKind `gorm:"size:20;uniqueIndex:idx_certificate_source;not null" json:"kind"`
	SourceRef string          `gorm:"size:64;uniqueIndex:idx_certificate_source;not null" json:"sourceRef"`
	Title     string          `gorm:"size:255;not null" json:"title"`
	Score     *int            `json:"score,omitempty"`
	IssuedAt  time.Time       `json:"issuedAt"`
	FileKey   string          `gorm:"size:255" json:"-"`
	FileURL   string          `gorm:"size:500" json:"fileUrl"`
	User      *User           `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

func (Certificate) TableName() string {
	return "certificates"
}
