package storage

import (
	"errors"

	"github.com/ghdlabs/ghd-market-maker/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type databaseDSNStorage interface {
	GetDatabaseDSN() string
}

type storageLogger interface {
	Warnf(format string, args ...interface{})
	Panicf(format string, args ...interface{})
}

// Storage archives terminal orders and executions to Postgres and keeps the
// Telegram subscriber list. The archive writes are best effort: a database
// hiccup must never stop the trading loop, so they warn instead of failing.
type Storage struct {
	dataBase *gorm.DB
	logger   storageLogger
}

func New(databaseDSNStorage databaseDSNStorage, storageLogger storageLogger) *Storage {
	dataBase, err := gorm.Open(postgres.New(
		postgres.Config{
			DSN:                  databaseDSNStorage.GetDatabaseDSN(),
			PreferSimpleProtocol: true,
		}), &gorm.Config{})

	if err != nil {
		storageLogger.Panicf("%v", err)
	}

	storage := Storage{dataBase: dataBase, logger: storageLogger}
	storage.dataBase.AutoMigrate(&domain.Order{}, &domain.Fill{}, &domain.User{})

	return &storage
}

// ArchiveOrder persists an order that reached a terminal status.
func (storage *Storage) ArchiveOrder(order domain.Order) {
	result := storage.dataBase.Create(&order)

	if result.Error != nil {
		storage.logger.Warnf("archive order %s: %v", order.ClientOrderID, result.Error)
	}
}

// RecordFill persists one execution.
func (storage *Storage) RecordFill(fill domain.Fill) {
	result := storage.dataBase.Create(&fill)

	if result.Error != nil {
		storage.logger.Warnf("record fill %s seq %d: %v", fill.ClientOrderID, fill.Seq, result.Error)
	}
}

func (storage *Storage) NewUser(newUser *domain.User) {
	result := storage.dataBase.Create(newUser)

	if result.Error != nil {
		storage.logger.Panicf("%v", result.Error)
	}
}

func (storage *Storage) FindUser(findUser *domain.User) (domain.User, bool) {
	var user domain.User

	result := storage.dataBase.Where(findUser).Take(&user)

	isFound := !errors.Is(result.Error, gorm.ErrRecordNotFound)
	if isFound && result.Error != nil {
		storage.logger.Panicf("%v", result.Error)
	}

	return user, isFound
}

func (storage *Storage) GetUsers() []domain.User {
	var users []domain.User

	result := storage.dataBase.Find(&users)

	if result.Error != nil {
		storage.logger.Panicf("%v", result.Error)
	}

	return users
}
