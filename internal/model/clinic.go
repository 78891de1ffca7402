package model

import (
	"maps"
	"slices"
)

// Weekdays accepted as business hours keys.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

type ClinicInfo struct {
	DisplayName string `json:"display_name" validate:"required,max=100"`
	Address     string `json:"address" validate:"max=255"`
	Phone       string `json:"phone" validate:"max=32"`
}

// DayHours uses 24h "15:04" times. Open and Close are ignored when Closed is set.
type DayHours struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	Closed bool   `json:"closed"`
}

type AppointmentType struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name" validate:"required,max=100"`
	DurationMinutes     int    `json:"duration_minutes" validate:"gt=0,lte=1440"`
	ReceiptName         string `json:"receipt_name,omitempty" validate:"max=100"`
	AllowPatientBooking bool   `json:"allow_patient_booking"`
	Description         string `json:"description,omitempty" validate:"max=1000"`
}

type NotificationSettings struct {
	ReminderEnabled     bool `json:"reminder_enabled"`
	ReminderHoursBefore int  `json:"reminder_hours_before" validate:"gte=0,lte=168"`
}

type BookingRestrictionSettings struct {
	MinimumBookingHoursAhead int  `json:"minimum_booking_hours_ahead" validate:"gte=0"`
	MaxBookingWindowDays     int  `json:"max_booking_window_days" validate:"gte=0,lte=365"`
	AllowSameDayCancellation bool `json:"allow_same_day_cancellation"`
}

type ChatSettings struct {
	Enabled       bool   `json:"enabled"`
	AutoReplyText string `json:"auto_reply_text,omitempty" validate:"max=1000"`
}

type ReceiptSettings struct {
	ShowStamp   bool   `json:"show_stamp"`
	CustomNotes string `json:"custom_notes,omitempty" validate:"max=500"`
}

// ClinicSettings is the clinic-wide configuration saved in one bulk call.
type ClinicSettings struct {
	ClinicID         int64                      `json:"clinic_id"`
	ClinicInfo       ClinicInfo                 `json:"clinic_info"`
	BusinessHours    map[string]DayHours        `json:"business_hours"`
	AppointmentTypes []AppointmentType          `json:"appointment_types" validate:"dive"`
	Notification     NotificationSettings       `json:"notification_settings"`
	Booking          BookingRestrictionSettings `json:"booking_restriction_settings"`
	Chat             ChatSettings               `json:"chat_settings"`
	Receipt          ReceiptSettings            `json:"receipt_settings"`
}

func (s ClinicSettings) Clone() ClinicSettings {
	out := s
	out.BusinessHours = maps.Clone(s.BusinessHours)
	out.AppointmentTypes = slices.Clone(s.AppointmentTypes)
	return out
}
