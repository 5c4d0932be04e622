package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fixhub/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// BookingLister is the slice of the booking service the exporter needs.
type BookingLister interface {
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
}

// Exporter renders bookings into Excel files for back-office use.
type Exporter struct {
	service BookingLister
	path    string
	logger  zerolog.Logger
}

func NewExporter(service BookingLister, path string, logger zerolog.Logger) *Exporter {
	return &Exporter{service: service, path: path, logger: logger}
}

// ExportBookings создает Excel файл с заявками за период
func (e *Exporter) ExportBookings(ctx context.Context, startDate, endDate time.Time) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	bookings, err := e.service.GetBookingsByDateRange(ctx, startDate, endDate)
	if err != nil {
		return "", fmt.Errorf("error getting bookings: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Заявки"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Период: %s - %s",
		startDate.Format("02.01.2006"), endDate.Format("02.01.2006")))

	headers := []string{
		"ID", "Клиент", "Мастер", "Услуга", "Проблема", "Срочность",
		"Статус", "Дата визита", "Оплата", "Создана", "Обновлена",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	lastHeaderCell, _ := excelize.CoordinatesToCellName(len(headers), 2)
	_ = f.SetCellStyle(sheetName, "A2", lastHeaderCell, headerStyle)

	for i, booking := range bookings {
		row := i + 3
		values := bookingRow(booking)
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, value)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", "K", 18)
	_ = f.SetColWidth(sheetName, "E", "E", 40)

	// Заголовок периода на всю ширину таблицы
	lastCol, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.MergeCell(sheetName, "A1", lastCol)

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("bookings_%s_to_%s.xlsx",
		startDate.Format("2006-01-02"),
		endDate.Format("2006-01-02"))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("bookings", len(bookings)).Msg("excel export created")
	return filePath, nil
}

func bookingRow(booking *models.Booking) []interface{} {
	scheduled := ""
	if !booking.ScheduledDate.IsZero() {
		scheduled = booking.ScheduledDate.Format("02.01.2006")
	}
	return []interface{}{
		booking.ID,
		booking.CustomerID,
		booking.TechnicianID,
		string(booking.ServiceType),
		booking.Issue,
		string(booking.Urgency),
		string(booking.Status),
		scheduled,
		string(booking.PaymentStatus),
		booking.CreatedAt.Format("02.01.2006 15:04"),
		booking.UpdatedAt.Format("02.01.2006 15:04"),
	}
}
