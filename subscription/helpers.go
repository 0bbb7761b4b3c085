package subscription

import (
	"fmt"

	"github.com/c360/ledpush/errors"
)

// SubscribeDevice subscribes to the topic of one device.
func (m *Manager) SubscribeDevice(deviceID string, callback Callback) (string, error) {
	return m.subscribeTemplate("", m.topics.DeviceTopic, ParamDeviceID, deviceID, callback)
}

// SubscribeDeviceForPage is SubscribeDevice tied to page.
func (m *Manager) SubscribeDeviceForPage(page, deviceID string, callback Callback) (string, error) {
	return m.subscribeTemplate(page, m.topics.DeviceTopic, ParamDeviceID, deviceID, callback)
}

// SubscribeTask subscribes to the progress topic of one task.
func (m *Manager) SubscribeTask(taskID string, callback Callback) (string, error) {
	return m.subscribeTemplate("", m.topics.TaskTopic, ParamTaskID, taskID, callback)
}

// SubscribeTaskForPage is SubscribeTask tied to page.
func (m *Manager) SubscribeTaskForPage(page, taskID string, callback Callback) (string, error) {
	return m.subscribeTemplate(page, m.topics.TaskTopic, ParamTaskID, taskID, callback)
}

// SubscribeBatch subscribes to the topic of one batch.
func (m *Manager) SubscribeBatch(batchID string, callback Callback) (string, error) {
	return m.subscribeTemplate("", m.topics.BatchTopic, ParamBatchID, batchID, callback)
}

// SubscribeBatchForPage is SubscribeBatch tied to page.
func (m *Manager) SubscribeBatchForPage(page, batchID string, callback Callback) (string, error) {
	return m.subscribeTemplate(page, m.topics.BatchTopic, ParamBatchID, batchID, callback)
}

// SubscribeUserNotifications subscribes to the current user's notification queue.
func (m *Manager) SubscribeUserNotifications(callback Callback) (string, error) {
	return m.subscribeUserNotifications("", callback)
}

// SubscribeUserNotificationsForPage is SubscribeUserNotifications tied to page.
func (m *Manager) SubscribeUserNotificationsForPage(page string, callback Callback) (string, error) {
	return m.subscribeUserNotifications(page, callback)
}

func (m *Manager) subscribeUserNotifications(page string, callback Callback) (string, error) {
	u := m.CurrentUser()
	if u == nil {
		return "", errors.New(errors.KindSubscriptionFailed, "subscription.SubscribeUserNotifications",
			fmt.Errorf("%w: no current user", errors.ErrSubscriptionFailed))
	}
	dest, err := Render(m.topics.UserNotifications, userParams(*u))
	if err != nil {
		return "", err
	}
	return m.subscribeMaybePage(page, dest, callback)
}

func (m *Manager) subscribeTemplate(page, template, param, value string, callback Callback) (string, error) {
	dest, err := Render(template, map[string]string{param: value})
	if err != nil {
		return "", err
	}
	return m.subscribeMaybePage(page, dest, callback)
}

func (m *Manager) subscribeMaybePage(page, dest string, callback Callback) (string, error) {
	if page == "" {
		return m.Subscribe(dest, callback)
	}
	return m.SubscribeForPage(page, dest, callback)
}
