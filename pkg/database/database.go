package database

import (
	"paes_math_backend/internal/config"
	"paes_math_backend/internal/model"
	"paes_math_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func InitDB(cfg *config.Config) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if cfg.Server.Mode == "debug" {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logger.Log.Info("Database connection established",
		zap.String("host", cfg.Database.Host),
		zap.String("db", cfg.Database.DBName))
	return db, nil
}

// Migrate 建表并写入初始的课程体系数据
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.ThematicAxis{},
		&model.Unit{},
		&model.Topic{},
		&model.Question{},
		&model.QuestionAttempt{},
		&model.LiveSession{},
		&model.SessionQuestion{},
		&model.SessionRegistration{},
		&model.SessionParticipant{},
		&model.SessionAnswer{},
		&model.DiagnosticSession{},
		&model.TutorConversation{},
		&model.TutorMessage{},
		&model.KnowledgeDeclaration{},
		&model.Certificate{},
		&model.UnitResource{},
	)
	if err != nil {
		return err
	}
	logger.Log.Info("Database migration completed")

	return SeedCurriculum(db)
}

type seedUnit struct {
	level model.TestLevel
	code  string
	name  string
}

type seedAxis struct {
	code  string
	name  string
	units []seedUnit
}

// PAES 数学的四个主题轴及其基础单元
var paesAxes = []seedAxis{
	{"numeros", "Números", []seedUnit{
		{model.LevelM1, "m1-enteros-racionales", "Números enteros y racionales"},
		{model.LevelM1, "m1-porcentaje", "Porcentaje"},
		{model.LevelM1, "m1-potencias-raices", "Potencias y raíces enésimas"},
		{model.LevelM2, "m2-numeros-reales", "Números reales"},
		{model.LevelM2, "m2-matematica-financiera", "Matemática financiera"},
		{model.LevelM2, "m2-logaritmos", "Logaritmos"},
	}},
	{"algebra-funciones", "Álgebra y funciones", []seedUnit{
		{model.LevelM1, "m1-expresiones-algebraicas", "Expresiones algebraicas"},
		{model.LevelM1, "m1-proporcionalidad", "Proporcionalidad"},
		{model.LevelM1, "m1-ecuaciones-lineales", "Ecuaciones e inecuaciones de primer grado"},
		{model.LevelM1, "m1-sistemas-ecuaciones", "Sistemas de ecuaciones lineales (2x2)"},
		{model.LevelM1, "m1-funcion-lineal-afin", "Función lineal y afín"},
		{model.LevelM1, "m1-funcion-cuadratica", "Función cuadrática"},
		{model.LevelM2, "m2-sistemas-ecuaciones", "Sistemas de ecuaciones: casos especiales"},
		{model.LevelM2, "m2-funcion-potencia", "Función potencia"},
	}},
	{"geometria", "Geometría", []seedUnit{
		{model.LevelM1, "m1-figuras-geometricas", "Figuras geométricas"},
		{model.LevelM1, "m1-cuerpos-geometricos", "Cuerpos geométricos"},
		{model.LevelM1, "m1-transformaciones-isometricas", "Transformaciones isométricas"},
		{model.LevelM1, "m1-semejanza-proporcionalidad", "Semejanza y proporcionalidad de figuras"},
		{model.LevelM2, "m2-trigonometria", "Razones trigonométricas en triángulos rectángulos"},
		{model.LevelM2, "m2-homotecia", "Homotecia"},
	}},
	{"probabilidad-estadistica", "Probabilidad y estadística", []seedUnit{
		{model.LevelM1, "m1-representacion-datos", "Representación de datos"},
		{model.LevelM1, "m1-medidas-posicion", "Medidas de posición"},
		{model.LevelM1, "m1-reglas-probabilidad", "Reglas de las probabilidades"},
		{model.LevelM2, "m2-medidas-dispersion", "Medidas de dispersión"},
		{model.LevelM2, "m2-probabilidad-condicional", "Probabilidad condicional"},
		{model.LevelM2, "m2-permutaciones-combinatoria", "Permutaciones y combinatoria"},
	}},
}

// SeedCurriculum 仅在主题轴为空时写入默认数据
func SeedCurriculum(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.ThematicAxis{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for i, a := range paesAxes {
			axis := model.ThematicAxis{Code: a.code, Name: a.name, Order: i + 1}
			if err := tx.Create(&axis).Error; err != nil {
				return err
			}
			for j, u := range a.units {
				unit := model.Unit{AxisID: axis.ID, Level: u.level, Code: u.code, Name: u.name, Order: j + 1}
				if err := tx.Create(&unit).Error; err != nil {
					return err
				}
			}
		}
		logger.Log.Info("Seeded PAES curriculum", zap.Int("axes", len(paesAxes)))
		return nil
	})
}
