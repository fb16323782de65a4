// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package humantask decides who may act on a manual task and keeps the human task records in
// line with that decision.
package humantask

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/ptr"
	"github.com/pbinitiative/zentask/pkg/storage"
)

const (
	ProcessInitiatorLane = "process initiator"
	LaneOwnersVariable   = "lane_owners"
)

type Resolver struct {
	store                storage.Storage
	autoCreateLaneGroups bool
	logger               hclog.Logger
}

// NewResolver creates the resolver. With autoCreateLaneGroups a lane naming an unknown group
// creates the group and the human task waits for members to be added. The group is staged
// in the batch of ResolveAndSync.
func NewResolver(store storage.Storage, autoCreateLaneGroups bool, logger hclog.Logger) *Resolver {
	return &Resolver{
		store:                store,
		autoCreateLaneGroups: autoCreateLaneGroups,
		logger:               logger,
	}
}

// Request describes the manual task to resolve.
type Request struct {
	Instance          runtime.ProcessInstance
	Task              runtime.TaskSnapshot
	Spec              *runtime.TaskSpec
	ProcessIdentifier string
}

// Assignment is the outcome of lane resolution.
type Assignment struct {
	LaneAssignmentId *int64
	UserIds          []int64
	AddedBy          runtime.HumanTaskUserAddedBy
	// NewGroups are lane groups that do not exist yet
	NewGroups []runtime.Group
}

type Result struct {
	HumanTask  runtime.HumanTask
	Created    bool
	AddedUsers []int64
}

func (r *Resolver) noOwners(req Request, reason string) error {
	return &NoPotentialOwnersForTaskError{
		TaskGuid: req.Task.Id.String(),
		TaskName: req.Spec.Name,
		Lane:     req.Spec.Lane,
		Reason:   reason,
	}
}

// Resolve computes the users allowed to complete the task. It does not write anything.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Assignment, error) {
	lane := strings.TrimSpace(req.Spec.Lane)
	if lane == "" {
		if ad, ok := assignmentFromExtensions(req.Spec.Extensions); ok {
			return r.resolveAssignment(ctx, req, ad)
		}
		return Assignment{UserIds: []int64{req.Instance.ProcessInitiatorId}, AddedBy: runtime.HumanTaskUserAddedByProcessInitiator}, nil
	}
	if strings.EqualFold(lane, ProcessInitiatorLane) {
		return Assignment{UserIds: []int64{req.Instance.ProcessInitiatorId}, AddedBy: runtime.HumanTaskUserAddedByProcessInitiator}, nil
	}

	if owners, ok := laneOwners(req.Task.Data, lane); ok {
		ids, err := r.usersByName(ctx, owners)
		if err != nil {
			return Assignment{}, err
		}
		if len(ids) == 0 {
			return Assignment{}, r.noOwners(req, "lane owners resolve to no known user")
		}
		return Assignment{UserIds: ids, AddedBy: runtime.HumanTaskUserAddedByLaneOwner}, nil
	}

	group, members, created, err := r.groupMembers(ctx, req, lane)
	if err != nil {
		return Assignment{}, err
	}
	res := Assignment{LaneAssignmentId: &group.Id, UserIds: members, AddedBy: runtime.HumanTaskUserAddedByLaneAssignment}
	if created {
		res.NewGroups = append(res.NewGroups, group)
	}
	return res, nil
}

func (r *Resolver) resolveAssignment(ctx context.Context, req Request, ad AssignmentDefinition) (Assignment, error) {
	res := Assignment{AddedBy: runtime.HumanTaskUserAddedByAssignee}
	ids, err := r.usersByName(ctx, ad.GetAssignees())
	if err != nil {
		return res, err
	}
	res.UserIds = ids
	for _, identifier := range ad.GetCandidateGroups() {
		group, members, created, err := r.groupMembers(ctx, req, identifier)
		if err != nil {
			return res, err
		}
		if created {
			res.NewGroups = append(res.NewGroups, group)
		}
		if res.LaneAssignmentId == nil {
			res.LaneAssignmentId = &group.Id
		}
		res.UserIds = append(res.UserIds, members...)
	}
	slices.Sort(res.UserIds)
	res.UserIds = slices.Compact(res.UserIds)
	if len(res.UserIds) == 0 && res.LaneAssignmentId == nil {
		return res, r.noOwners(req, "assignment resolves to no known user")
	}
	return res, nil
}

// groupMembers returns the group named by identifier and its members. A missing group is
// built but not saved when auto creation is enabled, otherwise missing groups and groups
// without members have no potential owners.
func (r *Resolver) groupMembers(ctx context.Context, req Request, identifier string) (runtime.Group, []int64, bool, error) {
	group, err := r.store.FindGroupByIdentifier(ctx, identifier)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if !r.autoCreateLaneGroups {
			return group, nil, false, r.noOwners(req, fmt.Sprintf("group %s does not exist", identifier))
		}
		return laneGroup(identifier), nil, true, nil
	case err != nil:
		return group, nil, false, fmt.Errorf("failed to find group %s: %w", identifier, err)
	}
	members, err := r.store.FindGroupMemberIds(ctx, group.Id)
	if err != nil {
		return group, nil, false, fmt.Errorf("failed to find members of group %s: %w", identifier, err)
	}
	if len(members) == 0 && !r.autoCreateLaneGroups {
		return group, nil, false, r.noOwners(req, fmt.Sprintf("group %s has no members", identifier))
	}
	return group, members, false, nil
}

// laneGroup derives the id from the identifier, concurrent passes creating the same lane
// group stage the same row.
func laneGroup(identifier string) runtime.Group {
	return runtime.Group{
		Id:         runtime.IdFromHash("group/" + identifier),
		Identifier: identifier,
		Name:       identifier,
	}
}

func (r *Resolver) usersByName(ctx context.Context, usernames []string) ([]int64, error) {
	ids := make([]int64, 0, len(usernames))
	for _, name := range usernames {
		user, err := r.store.FindUserByUsername(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn("Unknown user in task assignment", "username", name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find user %s: %w", name, err)
		}
		ids = append(ids, user.Id)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// laneOwners reads data["lane_owners"][lane] as a list of usernames.
func laneOwners(data map[string]any, lane string) ([]string, bool) {
	owners, ok := data[LaneOwnersVariable].(map[string]any)
	if !ok {
		return nil, false
	}
	list, ok := owners[lane].([]any)
	if !ok {
		return nil, false
	}
	res := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			res = append(res, s)
		}
	}
	return res, true
}

// ResolveAndSync resolves the task and stages its human task together with the user rows
// that are missing and the lane groups it creates. An open human task of the same task guid is reused and only rewritten
// when its status or lane assignment changed.
func (r *Resolver) ResolveAndSync(ctx context.Context, batch storage.Batch, req Request) (Result, error) {
	assignment, err := r.Resolve(ctx, req)
	if err != nil {
		return Result{}, err
	}

	now := time.Now()
	guid := req.Task.Id.String()
	res := Result{}
	for _, group := range assignment.NewGroups {
		if err := batch.SaveGroup(ctx, group); err != nil {
			return res, fmt.Errorf("failed to stage group %s: %w", group.Identifier, err)
		}
		batch.AddPostFlushAction(ctx, func() {
			r.logger.Info("Created lane group", "group", group.Identifier, "id", group.Id)
		})
	}
	existingUsers := map[int64]bool{}
	changed := true
	ht, err := r.store.FindOpenHumanTaskByTaskGuid(ctx, guid)
	switch {
	case err == nil:
		changed = ht.TaskStatus != req.Task.State.String() || !ptr.Equal(ht.LaneAssignmentId, assignment.LaneAssignmentId)
		users, err := r.store.FindHumanTaskUsers(ctx, ht.Id)
		if err != nil {
			return res, fmt.Errorf("failed to find users of human task %d: %w", ht.Id, err)
		}
		for _, u := range users {
			existingUsers[u.UserId] = true
		}
	case errors.Is(err, storage.ErrNotFound):
		ht = runtime.HumanTask{
			Id:                    r.store.GenerateId(),
			ProcessInstanceId:     req.Instance.Id,
			TaskGuid:              guid,
			TaskName:              req.Spec.Name,
			TaskTitle:             taskTitle(req.Spec),
			TaskType:              string(req.Spec.Kind),
			BpmnProcessIdentifier: req.ProcessIdentifier,
			CreatedAt:             now,
		}
		if req.Spec.Lane != "" {
			lane := req.Spec.Lane
			ht.LaneName = &lane
		}
		res.Created = true
	default:
		return res, fmt.Errorf("failed to find open human task of %s: %w", guid, err)
	}
	if changed {
		ht.TaskStatus = req.Task.State.String()
		ht.LaneAssignmentId = assignment.LaneAssignmentId
		ht.UpdatedAt = now
		if err := batch.SaveHumanTask(ctx, ht); err != nil {
			return res, fmt.Errorf("failed to stage human task of %s: %w", guid, err)
		}
	}

	for _, userId := range assignment.UserIds {
		if existingUsers[userId] {
			continue
		}
		err := batch.SaveHumanTaskUser(ctx, runtime.HumanTaskUser{
			HumanTaskId: ht.Id,
			UserId:      userId,
			AddedBy:     assignment.AddedBy,
		})
		if err != nil {
			return res, fmt.Errorf("failed to stage user %d of human task %d: %w", userId, ht.Id, err)
		}
		res.AddedUsers = append(res.AddedUsers, userId)
	}
	res.HumanTask = ht
	return res, nil
}

func taskTitle(spec *runtime.TaskSpec) string {
	if title, ok := spec.Extensions["title"].(string); ok && title != "" {
		return title
	}
	return spec.DisplayName()
}

// OnGroupMembershipChanged adds the current members of the group to every open human task
// assigned to it. It returns the number of staged user rows.
func (r *Resolver) OnGroupMembershipChanged(ctx context.Context, batch storage.Batch, groupId int64) (int, error) {
	tasks, err := r.store.FindOpenHumanTasksByLaneAssignmentId(ctx, groupId)
	if err != nil {
		return 0, fmt.Errorf("failed to find human tasks of group %d: %w", groupId, err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}
	members, err := r.store.FindGroupMemberIds(ctx, groupId)
	if err != nil {
		return 0, fmt.Errorf("failed to find members of group %d: %w", groupId, err)
	}
	added := 0
	for _, ht := range tasks {
		users, err := r.store.FindHumanTaskUsers(ctx, ht.Id)
		if err != nil {
			return added, fmt.Errorf("failed to find users of human task %d: %w", ht.Id, err)
		}
		for _, member := range members {
			if slices.ContainsFunc(users, func(u runtime.HumanTaskUser) bool { return u.UserId == member }) {
				continue
			}
			err := batch.SaveHumanTaskUser(ctx, runtime.HumanTaskUser{
				HumanTaskId: ht.Id,
				UserId:      member,
				AddedBy:     runtime.HumanTaskUserAddedByLaneAssignment,
			})
			if err != nil {
				return added, fmt.Errorf("failed to stage user %d of human task %d: %w", member, ht.Id, err)
			}
			added++
		}
	}
	r.logger.Debug("Synced group members to human tasks", "group", groupId, "tasks", len(tasks), "added", added)
	return added, nil
}

// CanUserCompleteTask reports whether the user is assigned to the open human task of the task.
func (r *Resolver) CanUserCompleteTask(ctx context.Context, taskGuid string, userId int64) (bool, error) {
	ht, err := r.store.FindOpenHumanTaskByTaskGuid(ctx, taskGuid)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to find open human task of %s: %w", taskGuid, err)
	}
	users, err := r.store.FindHumanTaskUsers(ctx, ht.Id)
	if err != nil {
		return false, fmt.Errorf("failed to find users of human task %d: %w", ht.Id, err)
	}
	return slices.ContainsFunc(users, func(u runtime.HumanTaskUser) bool { return u.UserId == userId }), nil
}
