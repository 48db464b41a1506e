package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/knikodemQ/Appointment-Booking-System/internal/slots"
	grpcTransport "github.com/knikodemQ/Appointment-Booking-System/internal/transport/grpc"
)

type clientFlags struct {
	addr    string
	doctor  string
	date    string
	timeout time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.addr, "addr", "127.0.0.1:50051", "gRPC address of a running server")
	cmd.Flags().StringVar(&f.doctor, "doctor", "", "doctor id")
	cmd.Flags().StringVar(&f.date, "date", time.Now().Format(time.DateOnly), "date as YYYY-MM-DD")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Second, "request timeout")
	_ = cmd.MarkFlagRequired("doctor")
}

func (f *clientFlags) dial(ctx context.Context) (*grpcTransport.Client, context.Context, func(), error) {
	client, conn, err := grpcTransport.Dial(f.addr)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	return client, ctx, func() {
		cancel()
		_ = conn.Close()
	}, nil
}

func freeSlotsCmd() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "free-slots",
		Short: "Print the bookable start times of a doctor's day",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, done, err := f.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			resp, err := client.ListFreeSlots(ctx, &grpcTransport.ListFreeSlotsRequest{DoctorID: f.doctor, Date: f.date})
			if err != nil {
				return err
			}
			if len(resp.Times) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no free slots\n", resp.Date)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Date, strings.Join(resp.Times, " "))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func weekCmd() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "week",
		Short: "Print the week grid containing --date",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, done, err := f.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			resp, err := client.GetWeek(ctx, &grpcTransport.GetWeekRequest{DoctorID: f.doctor, Date: f.date})
			if err != nil {
				return err
			}
			return printWeek(cmd.OutOrStdout(), resp.Week)
		},
	}
	f.register(cmd)
	return cmd
}

// printWeek renders one row per half-hour tick and one column per day.
func printWeek(out io.Writer, week slots.WeekView) error {
	tw := tabwriter.NewWriter(out, 0, 0, 1, ' ', 0)

	fmt.Fprint(tw, "time")
	for _, d := range week.Days {
		fmt.Fprintf(tw, "\t%s %s", d.Date.Weekday().String()[:3], d.Date)
	}
	fmt.Fprintln(tw)

	fmt.Fprint(tw, "visits")
	for _, d := range week.Days {
		fmt.Fprintf(tw, "\t%d", d.Consultations)
	}
	fmt.Fprintln(tw)

	for i, tick := range slots.DayAxis() {
		fmt.Fprint(tw, tick)
		for _, d := range week.Days {
			cell := "?"
			if i < len(d.Slots) {
				cell = slotCell(d.Slots[i])
			}
			fmt.Fprintf(tw, "\t%s", cell)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func slotCell(s slots.SlotStatus) string {
	switch {
	case s.Absent:
		return "absent"
	case s.Booked:
		if s.ConsultationType != "" {
			return s.ConsultationType
		}
		return "booked"
	case s.Available && !s.Past:
		return "free"
	default:
		return "-"
	}
}
