// 初始化脚本：建表、写入课程体系、创建首个管理员，可选导入题库 Excel
//
// 管理员只能由管理员创建，首次部署时用此脚本开通第一个账号。
//
// 用法: go run scripts/bootstrap.go -email admin@example.cl -password xxxxxxxx [-questions preguntas.xlsx]

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"paes_math_backend/internal/config"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/repository"
	"paes_math_backend/internal/service"
	"paes_math_backend/pkg/database"
	"paes_math_backend/pkg/logger"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	email := flag.String("email", "", "管理员邮箱")
	password := flag.String("password", "", "管理员密码（至少 8 位）")
	name := flag.String("name", "Administrador", "管理员姓名")
	questions := flag.String("questions", "", "可选：题库 xlsx 文件")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	ctx := context.Background()
	users := repository.NewUserRepository(db)

	var admin *model.User
	if *email != "" {
		admin, err = ensureAdmin(ctx, users, *name, *email, *password)
		if err != nil {
			log.Fatalf("创建管理员失败: %v", err)
		}
		logger.Log.Info("Admin ready", zap.Uint("userId", admin.ID), zap.String("email", admin.Email))
	}

	if *questions != "" {
		if admin == nil {
			log.Fatal("导入题库需要同时指定 -email")
		}
		f, err := os.Open(*questions)
		if err != nil {
			log.Fatalf("无法打开题库文件: %v", err)
		}
		defer f.Close()

		qs := service.NewQuestionService(repository.NewQuestionRepository(db), repository.NewCurriculumRepository(db))
		result, err := qs.ImportXLSX(ctx, admin.ID, f)
		if err != nil {
			log.Fatalf("导入失败: %v", err)
		}
		for _, rowErr := range result.Errors {
			log.Printf("第 %d 行: %s", rowErr.Row, rowErr.Message)
		}
		log.Printf("导入完成：%d 道题", result.Imported)
	}
}

func ensureAdmin(ctx context.Context, users *repository.UserRepository, name, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	existing, err := users.FindByEmail(ctx, email)
	if err == nil {
		if existing.Role != model.Admin {
			existing.Role = model.Admin
			if err := users.Update(ctx, existing); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if len(password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	admin := &model.User{
		Name:     name,
		Email:    email,
		Password: string(hashed),
		Role:     model.Admin,
		Level:    model.LevelM1,
	}
	if err := users.Create(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}
