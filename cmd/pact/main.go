package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pactline/internal/app"
	"pactline/internal/db"
	"pactline/internal/domain"
	"pactline/internal/engine"
	"pactline/internal/migrate"
	"pactline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pact",
	Short: "Pactline CLI",
	Long: `Pactline keeps couple decision-making fair with enforced discussion windows.
Core concepts:
- Workspace: your .pactline directory holding only the database.
- Decisions: time-boxed items that stay open for discussion, then lock.
- Topics: recurring conversation subjects; three discussions in a row
  freeze a topic for a day so it can cool off.
- Overrides: emergency bypasses, capped at five per rolling day, with the
  partner notified every time.
- Roles, children, tasks, ledger: the shared household state decisions
  attach to.
- Event log: diary of changes, view with 'pact log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PACTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user", "", "acting user (id or email)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func registerCommands() {
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(partnerCmd())
	rootCmd.AddCommand(decisionCmd())
	rootCmd.AddCommand(topicCmd())
	rootCmd.AddCommand(overrideCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(childCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- user ---

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userMeCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngineOnly(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				u, err := e.CreateUser(ctx, engine.CreateUserOptions{Email: email, Name: name})
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngineOnly(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				users, err := e.ListUsers(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(users)
			})
		},
	}
}

func userMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				return printJSONOrTable(u)
			})
		},
	}
}

// --- partner ---

func partnerCmd() *cobra.Command {
	partner := &cobra.Command{Use: "partner", Short: "Link partners"}
	partner.AddCommand(partnerInviteCmd())
	partner.AddCommand(partnerAcceptCmd())
	return partner
}

func partnerInviteCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Invite a partner by email",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				token, err := e.InvitePartner(ctx, engine.InvitePartnerOptions{ActorID: u.ID, Email: email})
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"token": token})
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "partner email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func partnerAcceptCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "accept",
		Short: "Accept a partner invite",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				linked, err := e.AcceptInvite(ctx, engine.AcceptInviteOptions{ActorID: u.ID, Token: token})
				if err != nil {
					return err
				}
				return printJSONOrTable(linked)
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "invite token")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

// --- decisions ---

func decisionCmd() *cobra.Command {
	decision := &cobra.Command{Use: "decision", Short: "Manage decisions"}
	decision.AddCommand(decisionCreateCmd())
	decision.AddCommand(decisionListCmd())
	decision.AddCommand(decisionShowCmd())
	decision.AddCommand(decisionLockCmd())
	return decision
}

func decisionCreateCmd() *cobra.Command {
	var title, description, category, owner, roleID, childID string
	var hours int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				d, err := e.CreateDecision(ctx, engine.CreateDecisionOptions{
					ActorID:         u.ID,
					Title:           title,
					Description:     description,
					Category:        category,
					OwnerID:         owner,
					RoleID:          roleID,
					ChildID:         childID,
					DiscussionHours: hours,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "decision title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (defaults to you)")
	cmd.Flags().StringVar(&roleID, "role", "", "role id")
	cmd.Flags().StringVar(&childID, "child", "", "child id")
	cmd.Flags().IntVar(&hours, "discussion-hours", 0, "discussion window in hours (1-168)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func decisionListCmd() *cobra.Command {
	var status, category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				list, err := e.ListDecisions(ctx, engine.ListDecisionsOptions{
					ActorID:  u.ID,
					Status:   status,
					Category: category,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Status", "Discussion Ends", "Overridden"})
				for _, d := range list {
					tw.AppendRow(table.Row{d.ID, d.Title, d.Category, d.Status, d.DiscussionEndsAt, d.Overridden})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (active, locked)")
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	return cmd
}

func decisionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <decision-id>",
		Short: "Show a decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				d, err := e.GetDecision(ctx, u.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func decisionLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock <decision-id>",
		Short: "Lock a decision after its discussion window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				d, err := e.LockDecision(ctx, engine.LockDecisionOptions{ActorID: u.ID, DecisionID: args[0]})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

// --- topics ---

func topicCmd() *cobra.Command {
	topic := &cobra.Command{Use: "topic", Short: "Manage governed topics"}
	topic.AddCommand(topicAddCmd())
	topic.AddCommand(topicListCmd())
	topic.AddCommand(topicDiscussCmd())
	topic.AddCommand(topicStatusCmd())
	topic.AddCommand(topicRemoveCmd())
	return topic
}

func topicAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <topic>",
		Short: "Track a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				t, err := e.AddTopic(ctx, engine.AddTopicOptions{ActorID: u.ID, Topic: args[0]})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func topicListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				list, err := e.ListTopics(ctx, engine.ListTopicsOptions{ActorID: u.ID, Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Topic", "Status", "Discussions", "Freeze Until"})
				for _, t := range list {
					until := ""
					if t.FreezeUntil != nil {
						until = *t.FreezeUntil
					}
					tw.AppendRow(table.Row{t.ID, t.Topic, t.Status, t.DiscussionCount, until})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (active, frozen, cooldown)")
	return cmd
}

func topicDiscussCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discuss <topic-id>",
		Short: "Record a discussion on a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				t, err := e.RecordDiscussion(ctx, engine.RecordDiscussionOptions{ActorID: u.ID, TopicID: args[0]})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func topicStatusCmd() *cobra.Command {
	var status string
	var freezeHours int
	cmd := &cobra.Command{
		Use:   "status <topic-id>",
		Short: "Set a topic's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				t, err := e.SetTopicStatus(ctx, engine.SetTopicStatusOptions{
					ActorID:     u.ID,
					TopicID:     args[0],
					Status:      status,
					FreezeHours: freezeHours,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "set", "", "status (active, frozen, cooldown)")
	cmd.Flags().IntVar(&freezeHours, "freeze-hours", 0, "freeze duration in hours (1-168)")
	_ = cmd.MarkFlagRequired("set")
	return cmd
}

func topicRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <topic-id>",
		Short: "Stop tracking a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				return e.RemoveTopic(ctx, engine.RemoveTopicOptions{ActorID: u.ID, TopicID: args[0]})
			})
		},
	}
	return cmd
}

// --- overrides ---

func overrideCmd() *cobra.Command {
	override := &cobra.Command{Use: "override", Short: "Emergency overrides"}
	override.AddCommand(overrideActivateCmd())
	override.AddCommand(overrideListCmd())
	return override
}

func overrideActivateCmd() *cobra.Command {
	var reason, decisionID, taskID string
	var hours int
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate an emergency override",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				o, err := e.ActivateOverride(ctx, engine.ActivateOverrideOptions{
					ActorID:       u.ID,
					Reason:        reason,
					DecisionID:    decisionID,
					TaskID:        taskID,
					DurationHours: hours,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the override is needed")
	cmd.Flags().StringVar(&decisionID, "decision", "", "decision id to bypass")
	cmd.Flags().StringVar(&taskID, "task", "", "task id to bypass")
	cmd.Flags().IntVar(&hours, "hours", 0, "override duration in hours (1-24)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func overrideListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				list, err := e.ListOverrides(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Reason", "Status", "Created", "Expires"})
				for _, o := range list.All {
					tw.AppendRow(table.Row{o.ID, o.Reason, o.Status, o.CreatedAt, o.ExpiresAt})
				}
				tw.Render()
				fmt.Printf("%d active now\n", len(list.ActiveNow))
				return nil
			})
		},
	}
	return cmd
}

// --- roles ---

func roleCmd() *cobra.Command {
	role := &cobra.Command{Use: "role", Short: "Manage roles"}
	role.AddCommand(roleCreateCmd())
	role.AddCommand(roleListCmd())
	role.AddCommand(roleUpdateCmd())
	role.AddCommand(roleLockCmd())
	role.AddCommand(roleDeleteCmd())
	return role
}

func roleCreateCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				role, err := e.CreateRole(ctx, engine.CreateRoleOptions{
					ActorID:     u.ID,
					Name:        name,
					Description: description,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(role)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "role name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func roleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				list, err := e.ListRoles(ctx, u.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(list)
			})
		},
	}
}

func roleUpdateCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "update <role-id>",
		Short: "Update a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				role, err := e.UpdateRole(ctx, engine.UpdateRoleOptions{
					ActorID:     u.ID,
					RoleID:      args[0],
					Name:        name,
					Description: description,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(role)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "role name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func roleLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock <role-id>",
		Short: "Lock a role permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				role, err := e.LockRole(ctx, engine.LockRoleOptions{ActorID: u.ID, RoleID: args[0]})
				if err != nil {
					return err
				}
				return printJSONOrTable(role)
			})
		},
	}
	return cmd
}

func roleDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <role-id>",
		Short: "Delete a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				return e.DeleteRole(ctx, u.ID, args[0])
			})
		},
	}
	return cmd
}

// --- children ---

func childCmd() *cobra.Command {
	child := &cobra.Command{Use: "child", Short: "Manage children"}
	child.AddCommand(childAddCmd())
	child.AddCommand(childListCmd())
	return child
}

func childAddCmd() *cobra.Command {
	var name, birthDate string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a child",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				c, err := e.AddChild(ctx, engine.AddChildOptions{
					ActorID:   u.ID,
					Name:      name,
					BirthDate: birthDate,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "child name")
	cmd.Flags().StringVar(&birthDate, "birth-date", "", "birth date (RFC3339)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func childListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List children",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				list, err := e.ListChildren(ctx, u.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(list)
			})
		},
	}
}

// --- tasks ---

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskStatusCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var title, description, priority, assignedTo, roleID, dueDate string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				t, err := e.CreateTask(ctx, engine.CreateTaskOptions{
					ActorID:     u.ID,
					Title:       title,
					Description: description,
					Priority:    priority,
					AssignedTo:  assignedTo,
					RoleID:      roleID,
					DueDate:     dueDate,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (low, medium, high)")
	cmd.Flags().StringVar(&assignedTo, "assignee", "", "assignee user id (defaults to you)")
	cmd.Flags().StringVar(&roleID, "role", "", "role id")
	cmd.Flags().StringVar(&dueDate, "due", "", "due date (RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, priority, assignedTo string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				list, err := e.ListTasks(ctx, engine.ListTasksOptions{
					ActorID:    u.ID,
					Status:     status,
					Priority:   priority,
					AssignedTo: assignedTo,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Status", "Assignee"})
				for _, t := range list {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Priority, t.Status, t.AssignedTo})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&assignedTo, "assignee", "", "assignee filter")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Update a task's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				t, err := e.UpdateTaskStatus(ctx, engine.UpdateTaskStatusOptions{
					ActorID: u.ID,
					TaskID:  args[0],
					Status:  status,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "set", "", "status (pending, in_progress, done)")
	_ = cmd.MarkFlagRequired("set")
	return cmd
}

// --- ledger ---

func ledgerCmd() *cobra.Command {
	ledger := &cobra.Command{Use: "ledger", Short: "Shared expense ledger"}
	ledger.AddCommand(ledgerAddCmd())
	ledger.AddCommand(ledgerListCmd())
	return ledger
}

func ledgerAddCmd() *cobra.Command {
	var description, category, paidBy string
	var amount float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a ledger entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				entry, err := e.AddLedgerEntry(ctx, engine.AddLedgerEntryOptions{
					ActorID:     u.ID,
					Description: description,
					Category:    category,
					Amount:      amount,
					PaidBy:      paidBy,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "what the expense was")
	cmd.Flags().StringVar(&category, "category", "", "expense category")
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount paid")
	cmd.Flags().StringVar(&paidBy, "paid-by", "", "payer user id (defaults to you)")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func ledgerListCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				list, err := e.ListLedgerEntries(ctx, u.ID, category)
				if err != nil {
					return err
				}
				return printJSONOrTable(list)
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	return cmd
}

// --- notifications ---

func notificationCmd() *cobra.Command {
	notification := &cobra.Command{Use: "notification", Short: "In-app notifications"}
	notification.AddCommand(notificationListCmd())
	notification.AddCommand(notificationReadCmd())
	return notification
}

func notificationListCmd() *cobra.Command {
	var unread bool
	var evtType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				list, err := e.ListNotifications(ctx, engine.ListNotificationsOptions{
					ActorID:    u.ID,
					UnreadOnly: unread,
					Type:       evtType,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(list)
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "unread only")
	cmd.Flags().StringVar(&evtType, "type", "", "type filter")
	return cmd
}

func notificationReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, u domain.User) error {
				return e.MarkNotificationRead(ctx, u.ID, args[0])
			})
		},
	}
	return cmd
}

// --- log ---

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Audit log"}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngineOnly(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				events, err := e.ListEvents(ctx, engine.ListEventsOptions{
					Limit:      n,
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devAuth bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := app.ResolveConfig(workspace)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:      os.Getenv("PACTLINE_JWT_SECRET"),
				AllowDevHeader: devAuth,
			}
			if authCfg.JWTSecret == "" && !devAuth {
				return fmt.Errorf("PACTLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Pactline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	cmd.Flags().BoolVar(&devAuth, "dev-auth", false, "trust the X-User-Id header (local development only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine, domain.User) error) error {
	return withEngineOnly(ctx, func(ctx context.Context, e *engine.Engine) error {
		u, err := app.ResolveUser(ctx, e.Repo, viper.GetString("user"))
		if err != nil {
			return err
		}
		return fn(ctx, e, u)
	})
}

func withEngineOnly(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := app.ResolveConfig(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
