package db

import (
	"Gin_postgres_redis_library/models"
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 打开连接；TranslateError 让唯一键/外键冲突变成 gorm.ErrDuplicatedKey 等
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		// 历史借阅记录在图书/读者删除后保留，不建外键
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

func ConnectDB(dsn string) *gorm.DB {
	conn, err := Open(dsn)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	if err := Migrate(conn); err != nil {
		log.Fatal("Failed to migrate models: ", err)
	}
	log.Println("Database connected")
	return conn
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Publisher{}, &models.Book{}, &models.Reader{},
		&models.Employee{}, &models.Credential{}, &models.Invite{},
		&models.Loan{}, &models.LoanEvent{}, &models.Sequence{},
	); err != nil {
		return err
	}

	// 同一读者同一本书最多一条“未归还”
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_one_open_per_reader_book
	  ON %s (reader_id, book_id)
	  WHERE returned_at IS NULL;
	`, models.LoanTable, models.LoanTable)).Error; err != nil {
		return err
	}

	// 逾期查询
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_open_due_at
	  ON %s (due_at)
	  WHERE returned_at IS NULL;
	`, models.LoanTable, models.LoanTable)).Error; err != nil {
		return err
	}

	return nil
}
